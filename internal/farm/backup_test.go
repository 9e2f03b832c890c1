package farm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"farmledger/internal/blob"
	"farmledger/pkg/domain"
)

func populate(t *testing.T, s *Store) {
	t.Helper()
	share := 75.0
	bin2, bin3 := binID(t, s, "Bin #2"), binID(t, s, "Bin #3")
	f, err := s.AddField(domain.Field{Name: "North 80", Acreage: 40, ProducerShare: &share, IrrigationPractice: domain.IrrigationNonIrrigated})
	require.NoError(t, err)
	_, err = s.AddPlantRecord(domain.PlantRecord{FieldID: f.ID, SeedVariety: "DKC 64-35", Crop: "Corn"})
	require.NoError(t, err)
	_, err = s.AddSprayRecord(domain.SprayRecord{FieldID: f.ID, Products: []domain.SprayProduct{{Product: "Atrazine", Rate: "1", RateUnit: "qt/ac"}}})
	require.NoError(t, err)
	_, err = s.AddHarvestRecord(domain.HarvestRecord{FieldID: f.ID, Destination: domain.DestinationBin, BinID: bin2, Bushels: 7400})
	require.NoError(t, err)
	_, err = s.AddHayHarvestRecord(domain.HayHarvestRecord{FieldID: fieldID(t, s, "Hilltop"), BaleCount: 12})
	require.NoError(t, err)
	_, err = s.AddGrainMovement(domain.GrainMovement{BinID: bin2, Type: domain.MovementOut, Bushels: 400})
	require.NoError(t, err)
	_, err = s.AddSavedSeed("DKC 64-35")
	require.NoError(t, err)
	_, err = s.AddSprayRecipe(domain.SprayRecipe{Name: "Pre-emerge", Products: []domain.SprayProduct{{Product: "Atrazine"}}})
	require.NoError(t, err)
	s.DeleteBins(bin3)
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	sink := blob.NewMemory()
	src := newHarness(t, offlineRemote, withBackups(sink))
	populate(t, src.store)
	want := src.store.BackupDocument()

	receipt, err := src.store.ExportBackup(context.Background())
	require.NoError(t, err)
	require.Empty(t, receipt.URL)
	require.Equal(t, testNow, receipt.CreatedAt)

	dst := newHarness(t, offlineRemote, withBackups(sink), func(o *Options) {
		o.Clock = func() time.Time { return testNow.AddDate(2, 0, 0) }
	})
	require.NoError(t, dst.store.RestoreFromBlob(context.Background(), receipt.Key))
	got := dst.store.BackupDocument()
	got.BackupDate, want.BackupDate = "", ""
	require.Equal(t, want, got)
	require.Equal(t, 2025, dst.store.ActiveSeason())
	require.Equal(t, 7000.0, dst.store.BinTotal(binID(t, dst.store, "Bin #2")))

	reopened, err := Open(Options{Cache: dst.cache, Clock: dst.clock.Now})
	require.NoError(t, err)
	require.Equal(t, 2025, reopened.ActiveSeason())
	require.Len(t, reopened.PlantRecords(), 1)
}

func TestBackupDocumentKeys(t *testing.T) {
	h := newHarness(t, offlineRemote)
	raw, err := json.Marshal(h.store.BackupDocument())
	require.NoError(t, err)
	var keys map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &keys))
	for _, key := range []string{"fields", "bins", "plantRecords", "sprayRecords", "harvestRecords", "hayHarvestRecords", "grainMovements", "savedSeeds", "sprayRecipes", "activeSeason", "backupDate"} {
		require.Contains(t, keys, key)
	}
	require.NotContains(t, keys, "rolloverDate")
	require.Equal(t, `"2025-06-01T12:00:00Z"`, string(keys["backupDate"]))
}

func TestRestoreWithMissingKeysChangesNothingElse(t *testing.T) {
	h := newHarness(t, offlineRemote)
	populate(t, h.store)
	before := h.store.BackupDocument()

	doc := `{"savedSeeds":[{"id":"s9","name":"Legacy"}],"backupDate":"2024-01-01T00:00:00Z","googleDrive":{"x":1}}`
	require.NoError(t, h.store.Restore(context.Background(), strings.NewReader(doc)))
	after := h.store.BackupDocument()
	require.Equal(t, before.Fields, after.Fields)
	require.Equal(t, before.PlantRecords, after.PlantRecords)
	require.Equal(t, before.ActiveSeason, after.ActiveSeason)
	require.Equal(t, []domain.SavedSeed{{ID: "s9", Name: "Legacy"}}, after.SavedSeeds)
}

func TestMalformedRestoreLeavesStateUntouched(t *testing.T) {
	cases := map[string]string{
		"not json":           `{"fields": [`,
		"wrong type":         `{"fields": "everything"}`,
		"missing id":         `{"bins":[{"name":"No id","capacity":1}]}`,
		"duplicate id":       `{"savedSeeds":[{"id":"a","name":"x"},{"id":"a","name":"y"}]}`,
		"bad destination":    `{"harvestRecords":[{"id":"h1","destination":"silo"}]}`,
		"bad movement type":  `{"grainMovements":[{"id":"g1","type":"sideways"}]}`,
		"ancient season":     `{"activeSeason": 1850}`,
		"valid then invalid": `{"fields":[],"grainMovements":[{"id":"g1","type":"up"}]}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, offlineRemote)
			populate(t, h.store)
			before := h.store.BackupDocument()
			err := h.store.Restore(context.Background(), strings.NewReader(doc))
			require.ErrorIs(t, err, domain.ErrMalformedBackup)
			require.Equal(t, before, h.store.BackupDocument())
		})
	}
}

func TestRestoreRepublishesToRemote(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)
	doc := Backup{
		Fields:       []domain.Field{{ID: "rf", Name: "Restored", Acreage: 10}},
		ActiveSeason: 2027,
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, h.store.Restore(context.Background(), bytes.NewReader(raw)))
	h.store.Wait()

	require.Equal(t, 2027, h.store.ActiveSeason())
	var restored domain.Row
	for _, row := range h.remote.Rows(domain.TableFields) {
		if row["id"] == "rf" {
			restored = row
		}
	}
	require.NotNil(t, restored)
	require.Equal(t, "farm-1", restored["farm_id"])
	profile, _, err := h.remote.GetProfile(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, 2027, profile.ActiveSeason)
}

func TestRestoreMovesForeignRowsIntoCurrentFarm(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)
	doc := Backup{
		Fields:       []domain.Field{{ID: "rf", FarmID: "farm-A", Name: "Borrowed", Acreage: 10}},
		SavedSeeds:   []domain.SavedSeed{{ID: "rs", FarmID: "farm-A", Name: "P1197"}},
		PlantRecords: []domain.PlantRecord{{ID: "rp", FarmID: "farm-A", FieldID: "rf", SeasonYear: 2025}},
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, h.store.Restore(context.Background(), bytes.NewReader(raw)))
	h.store.Wait()

	got, ok := h.store.FieldByID("rf")
	require.True(t, ok)
	require.Equal(t, "farm-1", got.FarmID)
	for _, table := range []string{domain.TableFields, domain.TableSavedSeeds, domain.TablePlantRecords} {
		rows, err := h.remote.Select(context.Background(), table, domain.Filter{FarmID: "farm-A", IncludeDeleted: true})
		require.NoError(t, err)
		require.Empty(t, rows, table)
	}
	rows, err := h.remote.Select(context.Background(), domain.TablePlantRecords, domain.Filter{FarmID: "farm-1"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "rp", rows[0]["id"])
}

func TestListBackupsAndUniqueKeys(t *testing.T) {
	sink := blob.NewMemory()
	h := newHarness(t, offlineRemote, withBackups(sink))
	first, err := h.store.ExportBackup(context.Background())
	require.NoError(t, err)
	second, err := h.store.ExportBackup(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, first.Key, second.Key)
	require.True(t, strings.HasSuffix(second.Key, "-1.json"))

	infos, err := h.store.ListBackups(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 2)

	_, err = h.store.ExportBackup(context.Background())
	require.NoError(t, err)
	require.Error(t, h.store.RestoreFromBlob(context.Background(), "backups/local/missing.json"))

	noSink := newHarness(t, offlineRemote)
	_, err = noSink.store.ListBackups(context.Background())
	require.ErrorIs(t, err, ErrNoBackupSink)
	require.ErrorIs(t, noSink.store.RestoreFromBlob(context.Background(), "x"), ErrNoBackupSink)
}

// presigningSink hands out a fixed download link.
type presigningSink struct{ blob.Store }

func (presigningSink) PresignURL(context.Context, string, blob.SignedURLOptions) (string, error) {
	return "https://example.test/backup", nil
}

func TestExportIncludesDownloadLink(t *testing.T) {
	h := newHarness(t, offlineRemote, withBackups(presigningSink{blob.NewMemory()}))
	receipt, err := h.store.ExportBackup(context.Background())
	require.NoError(t, err)
	require.Equal(t, "https://example.test/backup", receipt.URL)

	_, body, err := h.store.backups.Get(context.Background(), receipt.Key)
	require.NoError(t, err)
	defer body.Close()
	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	var doc Backup
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.Equal(t, 2025, doc.ActiveSeason)
	require.Len(t, doc.Fields, 6)
}

func TestSeedDemoData(t *testing.T) {
	h := newHarness(t, offlineRemote)
	sum, err := h.store.SeedDemoData()
	require.NoError(t, err)
	require.Equal(t, DemoSummary{Plant: 6, Spray: 6, Harvest: 6, Hay: 2}, sum)
	require.Len(t, h.store.RecordsForSeason(2025).Plant, 6)
	require.Len(t, h.store.GrainMovements(), 3)
	for _, r := range h.store.SprayRecords() {
		require.NotEmpty(t, r.Product)
		require.Equal(t, 2025, r.SeasonYear)
	}
}
