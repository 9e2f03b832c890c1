package farm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"go.uber.org/zap"

	"farmledger/internal/blob"
	"farmledger/pkg/domain"
)

const (
	backupPrefix      = "backups/"
	backupContentType = "application/json"
	localFarm         = "local"
)

// ErrNoBackupSink is returned by backup operations on a store without a sink.
var ErrNoBackupSink = errors.New("farm: no backup sink configured")

// Backup is the exported document. Keys match the collection names.
type Backup struct {
	Fields            []domain.Field            `json:"fields"`
	Bins              []domain.Bin              `json:"bins"`
	PlantRecords      []domain.PlantRecord      `json:"plantRecords"`
	SprayRecords      []domain.SprayRecord      `json:"sprayRecords"`
	HarvestRecords    []domain.HarvestRecord    `json:"harvestRecords"`
	HayHarvestRecords []domain.HayHarvestRecord `json:"hayHarvestRecords"`
	GrainMovements    []domain.GrainMovement    `json:"grainMovements"`
	SavedSeeds        []domain.SavedSeed        `json:"savedSeeds"`
	SprayRecipes      []domain.SprayRecipe      `json:"sprayRecipes"`
	ActiveSeason      int                       `json:"activeSeason"`
	BackupDate        string                    `json:"backupDate"`
	RolloverDate      string                    `json:"rolloverDate,omitempty"`
}

// BackupReceipt describes a stored backup.
type BackupReceipt struct {
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// BackupDocument snapshots every collection, soft-deleted entries included.
func (s *Store) BackupDocument() Backup {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Backup{
		Fields:            s.fields.snapshot(),
		Bins:              s.bins.snapshot(),
		PlantRecords:      s.plants.snapshot(),
		SprayRecords:      s.sprays.snapshot(),
		HarvestRecords:    s.harvests.snapshot(),
		HayHarvestRecords: s.hay.snapshot(),
		GrainMovements:    s.grain.snapshot(),
		SavedSeeds:        s.seeds.snapshot(),
		SprayRecipes:      s.recipes.snapshot(),
		ActiveSeason:      s.activeSeason,
		BackupDate:        s.now().UTC().Format(time.RFC3339Nano),
	}
}

// ExportBackup writes the backup document to the sink under a new key.
func (s *Store) ExportBackup(ctx context.Context) (BackupReceipt, error) {
	return s.exportBackup(ctx, false)
}

func (s *Store) exportBackup(ctx context.Context, rollover bool) (BackupReceipt, error) {
	if s.backups == nil {
		return BackupReceipt{}, ErrNoBackupSink
	}
	doc := s.BackupDocument()
	if rollover {
		doc.RolloverDate = doc.BackupDate
	}
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return BackupReceipt{}, fmt.Errorf("encode backup: %w", err)
	}
	created := s.now().UTC()
	base := s.backupPrefix() + "farmledger-backup-" + created.Format("2006-01-02T150405Z")
	opts := blob.PutOptions{
		ContentType: backupContentType,
		Metadata:    map[string]string{"active-season": strconv.Itoa(doc.ActiveSeason), "rollover": strconv.FormatBool(rollover)},
	}
	var info blob.Info
	key := base + ".json"
	for attempt := 1; ; attempt++ {
		info, err = s.backups.Put(ctx, key, bytes.NewReader(payload), opts)
		if !errors.Is(err, blob.ErrExists) || attempt >= 10 {
			break
		}
		key = fmt.Sprintf("%s-%d.json", base, attempt)
	}
	if err != nil {
		return BackupReceipt{}, fmt.Errorf("store backup: %w", err)
	}
	receipt := BackupReceipt{Key: key, Size: info.Size, URL: info.URL, CreatedAt: created}
	url, err := s.backups.PresignURL(ctx, key, blob.SignedURLOptions{Method: "GET", Expiry: s.backupURLExpiry})
	switch {
	case err == nil:
		receipt.URL = url
	case !errors.Is(err, blob.ErrUnsupported):
		s.logger.Warn("backup download link failed", zap.String("key", key), zap.Error(err))
	}
	s.logger.Info("backup exported", zap.String("key", key), zap.Int64("size", receipt.Size), zap.Bool("rollover", rollover))
	return receipt, nil
}

func (s *Store) backupPrefix() string {
	farmID := s.FarmID()
	if farmID == "" {
		farmID = localFarm
	}
	return backupPrefix + farmID + "/"
}

// ListBackups returns this farm's stored backups in key order, which is also
// creation order.
func (s *Store) ListBackups(ctx context.Context) ([]blob.Info, error) {
	if s.backups == nil {
		return nil, ErrNoBackupSink
	}
	return s.backups.List(ctx, s.backupPrefix())
}

// RestoreFromBlob restores the backup stored under key.
func (s *Store) RestoreFromBlob(ctx context.Context, key string) error {
	if s.backups == nil {
		return ErrNoBackupSink
	}
	_, body, err := s.backups.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("open backup %s: %w", key, err)
	}
	defer func() { _ = body.Close() }()
	return s.Restore(ctx, body)
}

// restoreDocument distinguishes a missing key (nil) from an empty collection.
type restoreDocument struct {
	Fields            *[]domain.Field            `json:"fields"`
	Bins              *[]domain.Bin              `json:"bins"`
	PlantRecords      *[]domain.PlantRecord      `json:"plantRecords"`
	SprayRecords      *[]domain.SprayRecord      `json:"sprayRecords"`
	HarvestRecords    *[]domain.HarvestRecord    `json:"harvestRecords"`
	HayHarvestRecords *[]domain.HayHarvestRecord `json:"hayHarvestRecords"`
	GrainMovements    *[]domain.GrainMovement    `json:"grainMovements"`
	SavedSeeds        *[]domain.SavedSeed        `json:"savedSeeds"`
	SprayRecipes      *[]domain.SprayRecipe      `json:"sprayRecipes"`
	ActiveSeason      *int                       `json:"activeSeason"`
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrMalformedBackup, fmt.Sprintf(format, args...))
}

func checkIDs[T domain.Entity](name string, items *[]T) error {
	if items == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(*items))
	for i, item := range *items {
		id := item.EntityID()
		if id == "" {
			return malformed("%s[%d] has no id", name, i)
		}
		if _, dup := seen[id]; dup {
			return malformed("%s has duplicate id %s", name, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func (d *restoreDocument) validate() error {
	for _, err := range []error{
		checkIDs("fields", d.Fields),
		checkIDs("bins", d.Bins),
		checkIDs("plantRecords", d.PlantRecords),
		checkIDs("sprayRecords", d.SprayRecords),
		checkIDs("harvestRecords", d.HarvestRecords),
		checkIDs("hayHarvestRecords", d.HayHarvestRecords),
		checkIDs("grainMovements", d.GrainMovements),
		checkIDs("savedSeeds", d.SavedSeeds),
		checkIDs("sprayRecipes", d.SprayRecipes),
	} {
		if err != nil {
			return err
		}
	}
	if d.HarvestRecords != nil {
		for _, h := range *d.HarvestRecords {
			if !h.Destination.Valid() {
				return malformed("harvest %s destination %q", h.ID, h.Destination)
			}
		}
	}
	if d.GrainMovements != nil {
		for _, m := range *d.GrainMovements {
			if !m.Type.Valid() {
				return malformed("grain movement %s type %q", m.ID, m.Type)
			}
		}
	}
	if d.ActiveSeason != nil && *d.ActiveSeason < minSeason {
		return malformed("active season %d", *d.ActiveSeason)
	}
	return nil
}

// restoreInto replaces c with items when the key was present and returns the
// upsert that republishes it. Restored rows belong to the current farm
// whatever farm the backup was taken from.
func restoreInto[T domain.Entity](s *Store, c *collection[T], items *[]T, farm func(*T) *string) (PendingMutation, bool) {
	if items == nil {
		return PendingMutation{}, false
	}
	c.items = *items
	if c.items == nil {
		c.items = []T{}
	}
	for i := range c.items {
		if p := farm(&c.items[i]); s.farmID != "" {
			*p = s.farmID
		}
	}
	return writeOf(c, opUpsert, c.items...), len(c.items) > 0
}

// Restore replaces the collections and active season present in the backup
// read from r, then persists and republishes them. A document that fails to
// parse or validate leaves every collection untouched.
func (s *Store) Restore(ctx context.Context, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	var doc restoreDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		s.logger.Error("restore rejected", zap.Error(err))
		return fmt.Errorf("%w: %v", domain.ErrMalformedBackup, err)
	}
	if err := doc.validate(); err != nil {
		s.logger.Error("restore rejected", zap.Error(err))
		return err
	}

	s.mu.Lock()
	var writes []PendingMutation
	add := func(w PendingMutation, ok bool) {
		if ok {
			writes = append(writes, w)
		}
	}
	add(restoreInto(s, &s.fields, doc.Fields, func(f *domain.Field) *string { return &f.FarmID }))
	add(restoreInto(s, &s.bins, doc.Bins, func(b *domain.Bin) *string { return &b.FarmID }))
	add(restoreInto(s, &s.plants, doc.PlantRecords, func(r *domain.PlantRecord) *string { return &r.FarmID }))
	add(restoreInto(s, &s.sprays, doc.SprayRecords, func(r *domain.SprayRecord) *string { return &r.FarmID }))
	add(restoreInto(s, &s.harvests, doc.HarvestRecords, func(r *domain.HarvestRecord) *string { return &r.FarmID }))
	add(restoreInto(s, &s.hay, doc.HayHarvestRecords, func(r *domain.HayHarvestRecord) *string { return &r.FarmID }))
	add(restoreInto(s, &s.grain, doc.GrainMovements, func(m *domain.GrainMovement) *string { return &m.FarmID }))
	add(restoreInto(s, &s.seeds, doc.SavedSeeds, func(r *domain.SavedSeed) *string { return &r.FarmID }))
	add(restoreInto(s, &s.recipes, doc.SprayRecipes, func(r *domain.SprayRecipe) *string { return &r.FarmID }))
	if doc.ActiveSeason != nil {
		s.activeSeason = *doc.ActiveSeason
		s.viewingSeason = *doc.ActiveSeason
	}
	s.saveAllLocked()
	season := s.activeSeason
	s.mu.Unlock()

	s.logger.Info("backup restored", zap.Int("season", season), zap.Int("tables", len(writes)))
	s.push(nil, writes...)
	if doc.ActiveSeason != nil {
		s.pushProfile()
	}
	return nil
}
