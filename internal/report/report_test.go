package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"farmledger/pkg/domain"
)

func ptr(v float64) *float64 { return &v }

var testFields = []domain.Field{
	{ID: "f1", Name: "North 80", Acreage: 40, FSAFarmNumber: "1234", FSATractNumber: "567", FSAFieldNumber: "3",
		ProducerShare: ptr(75), IrrigationPractice: domain.IrrigationIrrigated, IntendedUse: "Grain"},
	{ID: "f2", Name: "Creek Bottom", Acreage: 65},
}

func csvLines(t *testing.T, table Table) []string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, table))
	require.False(t, strings.HasSuffix(buf.String(), "\n"))
	return strings.Split(buf.String(), "\n")
}

func TestSprayLogRowPerProduct(t *testing.T) {
	rec := domain.SprayRecord{
		FieldID: "f1", FieldName: "North 80", SprayDate: "2025-05-14", StartTime: "07:45",
		ApplicatorName: "Pat Doe", LicenseNumber: "MO-1", WindSpeed: 6, WindDirection: "SW", Temperature: 71.5,
		RelativeHumidity: ptr(48), TargetPest: "Waterhemp", TotalMixtureVolume: "600 gal", EquipmentID: "Sprayer 2",
		Products: []domain.SprayProduct{
			{Product: "Atrazine 4L", Rate: "1.5", RateUnit: "qt/ac", EPARegNumber: "100-497"},
			{Product: "Dual II Magnum", Rate: "1.33", RateUnit: "pt/ac"},
		},
	}
	lines := csvLines(t, Builder{Location: time.UTC}.SprayLog([]domain.SprayRecord{rec}, testFields))
	require.Equal(t, strings.Join(SprayLogHeader, ","), lines[0])
	require.Len(t, lines, 3)
	require.Equal(t, `2025-05-14,07:45,"Pat Doe","MO-1","Atrazine 4L","100-497","North 80",40,"1.5 qt/ac","60.0 qt/ac","600 gal","Sprayer 2",6,SW,71.5,48,"Waterhemp",""`, lines[1])
	require.Equal(t, `2025-05-14,07:45,"Pat Doe","MO-1","Dual II Magnum","N/A","North 80",40,"1.33 pt/ac","53.2 pt/ac","600 gal","Sprayer 2",6,SW,71.5,48,"Waterhemp",""`, lines[2])
}

func TestSprayLogLegacyRow(t *testing.T) {
	rec := domain.SprayRecord{
		FieldID: "gone", FieldName: "Old Field", Product: `Roundup "Ultra"`, MixtureRate: "32 oz/ac",
		Timestamp: time.Date(2024, 7, 4, 15, 0, 0, 0, time.UTC).UnixMilli(), WindSpeed: 3.2, Temperature: 88,
	}
	lines := csvLines(t, Builder{Location: time.UTC}.SprayLog([]domain.SprayRecord{rec}, testFields))
	require.Equal(t, `7/4/2024,,"","","Roundup ""Ultra""","","Old Field",,"32 oz/ac",,"","",3.2,,88,,"",""`, lines[1])
}

func TestSprayLogTreatedAreaOverridesField(t *testing.T) {
	rec := domain.SprayRecord{
		FieldID: "f2", FieldName: "Creek Bottom", SprayDate: "2025-06-01", TreatedAreaSize: "30.5 ac",
		Products: []domain.SprayProduct{{Product: "Liberty", Rate: "abc", RateUnit: "oz/ac"}},
	}
	lines := csvLines(t, Builder{}.SprayLog([]domain.SprayRecord{rec}, testFields))
	cells := strings.Split(lines[1], ",")
	require.Equal(t, "30.5 ac", cells[7])
	require.Equal(t, `""`, cells[9], "unparseable rate leaves the total blank")
}

func TestFSA578Fallbacks(t *testing.T) {
	records := []domain.PlantRecord{
		{FieldID: "f1", Acreage: 40, Crop: "Corn", PlantDate: "2025-04-22"},
		{FieldID: "f2", Acreage: 65.25, Crop: "Soybeans", IntendedUse: "Seed", ProducerShare: ptr(50),
			Timestamp: time.Date(2025, 5, 9, 12, 0, 0, 0, time.UTC).UnixMilli()},
	}
	lines := csvLines(t, Builder{Location: time.UTC}.FSA578(records, testFields))
	require.Equal(t, "Farm #,Tract #,Field #,Acreage,Crop,Intended Use,Irrigation Practice,Producer Share %,Plant Date", lines[0])
	require.Equal(t, `1234,567,3,40,"Corn","Grain",IR,75%,2025-04-22`, lines[1])
	require.Equal(t, `,,,65.25,"Soybeans","Seed",NI,50%,5/9/2025`, lines[2])
}

func TestHarvestReport(t *testing.T) {
	records := []domain.HarvestRecord{
		{FieldID: "f1", FieldName: "North 80", Crop: "Corn", Bushels: 7400, MoisturePercent: 15.5,
			Destination: domain.DestinationBin, LandlordSplitPercent: 25, HarvestDate: "2025-10-12"},
		{FieldID: "f2", FieldName: "Creek, Bottom", Bushels: 3000, Destination: domain.DestinationTown,
			Timestamp: time.Date(2025, 10, 20, 9, 0, 0, 0, time.UTC).UnixMilli()},
	}
	lines := csvLines(t, Builder{Location: time.UTC}.Harvest(records, testFields))
	require.Equal(t, strings.Join(HarvestHeader, ","), lines[0])
	require.Equal(t, `2025-10-12,North 80,"Corn",7400,15.5,On-Farm Bin,25,1234,567`, lines[1])
	require.Equal(t, `10/20/2025,"Creek, Bottom","",3000,0,Elevator/Sale,0,,`, lines[2])
}

func TestPackageWritersUseLocalTime(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, MissouriSprayLog(&buf, nil, nil))
	require.Equal(t, strings.Join(SprayLogHeader, ","), buf.String())
	buf.Reset()
	require.NoError(t, FSA578(&buf, []domain.PlantRecord{{FieldID: "x", PlantDate: "2025-04-01"}}, nil))
	require.Contains(t, buf.String(), ",NI,100%,2025-04-01")
	buf.Reset()
	require.NoError(t, HarvestReport(&buf, nil, nil))
	require.Equal(t, strings.Join(HarvestHeader, ","), buf.String())
}

func TestFormatting(t *testing.T) {
	require.Equal(t, 12.35, RoundTo(12.345678, 2))
	require.Equal(t, 12.0, RoundTo(11.96, 0))
	require.Equal(t, "40", FormatMeasurement(40))
	require.Equal(t, "17.25", FormatMeasurement(17.25))
	ms := time.Date(2025, 1, 5, 23, 30, 0, 0, time.UTC).UnixMilli()
	require.Equal(t, "1/5/2025", FormatDate(ms, time.UTC))
	chicago, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Skipf("zoneinfo unavailable: %v", err)
	}
	require.Equal(t, "1/5/2025", FormatDate(ms, chicago))
	require.Equal(t, "Missouri_Spray_Log_2025-06-01.csv", FileName("Missouri_Spray_Log", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)))
}

func TestParseLeading(t *testing.T) {
	for in, want := range map[string]float64{"1.5": 1.5, " 32 oz": 32, ".5qt": 0.5, "2e1": 20} {
		got, ok := parseLeading(in)
		require.True(t, ok, in)
		require.Equal(t, want, got, in)
	}
	_, ok := parseLeading("qt")
	require.False(t, ok)
}

func TestWorkbookSheets(t *testing.T) {
	b := Builder{Location: time.UTC}
	spray := b.SprayLog([]domain.SprayRecord{{FieldID: "f1", FieldName: "North 80", Product: "Atrazine", SprayDate: "2025-05-01"}}, testFields)
	plant := b.FSA578([]domain.PlantRecord{{FieldID: "f1", Acreage: 40, Crop: "Corn", PlantDate: "2025-04-22"}}, testFields)
	harvest := b.Harvest(nil, testFields)

	f, err := Workbook(spray, plant, harvest)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	require.Equal(t, []string{"Spray Log", "FSA 578", "Harvest"}, f.GetSheetList())
	require.Equal(t, 0, f.GetActiveSheetIndex())

	v, err := f.GetCellValue("FSA 578", "D2")
	require.NoError(t, err)
	require.Equal(t, "40", v)
	v, err = f.GetCellValue("Spray Log", "E2")
	require.NoError(t, err)
	require.Equal(t, "Atrazine", v)
	v, err = f.GetCellValue("Harvest", "A1")
	require.NoError(t, err)
	require.Equal(t, "Date", v)

	_, err = Workbook()
	require.Error(t, err)
}
