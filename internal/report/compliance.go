package report

import (
	"io"
	"strconv"
	"time"

	"farmledger/pkg/domain"
)

// Column headers, fixed by the forms they are filed against.
var (
	SprayLogHeader = []string{
		"Date", "Start Time", "Applicator Name", "License #", "Trade Name", "EPA Reg #",
		"Site/Field", "Total Acres Treated", "App Rate (per ac)", "Total Product Applied",
		"Total Mixture Volume (Mix + Water)", "Equipment ID", "Wind Speed (mph)",
		"Wind Direction", "Temp (F)", "Relative Humidity (%)", "Target Pest(s)", "Technicians",
	}
	FSA578Header = []string{
		"Farm #", "Tract #", "Field #", "Acreage", "Crop", "Intended Use",
		"Irrigation Practice", "Producer Share %", "Plant Date",
	}
	HarvestHeader = []string{
		"Date", "Field", "Crop", "Bushels", "Moisture %", "Destination",
		"Landlord Share %", "Farm #", "Tract #",
	}
)

// Builder renders report tables. Location sets the zone used for dates
// derived from timestamps; nil means local time.
type Builder struct {
	Location *time.Location
}

func fieldIndex(fields []domain.Field) map[string]domain.Field {
	idx := make(map[string]domain.Field, len(fields))
	for _, f := range fields {
		idx[f.ID] = f
	}
	return idx
}

func orDate(given string, ms int64, loc *time.Location) string {
	if given != "" {
		return given
	}
	return FormatDate(ms, loc)
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// SprayLog builds the pesticide application log: one row per product line
// item, or a single row for records that only carry a product summary.
func (b Builder) SprayLog(records []domain.SprayRecord, fields []domain.Field) Table {
	idx := fieldIndex(fields)
	t := Table{Name: "Spray Log", Header: SprayLogHeader}
	for _, r := range records {
		area := r.TreatedAreaSize
		if f, ok := idx[r.FieldID]; area == "" && ok && f.Acreage != 0 {
			area = FormatMeasurement(f.Acreage)
		}
		humidity := ""
		if r.RelativeHumidity != nil && *r.RelativeHumidity != 0 {
			humidity = FormatMeasurement(*r.RelativeHumidity)
		}
		shared := func(product, epa, rate, total Cell) []Cell {
			return []Cell{
				plain(orDate(r.SprayDate, r.Timestamp, b.Location)),
				plain(r.StartTime),
				text(r.ApplicatorName),
				text(r.LicenseNumber),
				product,
				epa,
				text(r.FieldName),
				plain(area),
				rate,
				total,
				text(r.TotalMixtureVolume),
				text(r.EquipmentID),
				plain(FormatMeasurement(r.WindSpeed)),
				plain(r.WindDirection),
				plain(FormatMeasurement(r.Temperature)),
				plain(humidity),
				text(r.TargetPest),
				text(r.InvolvedTechnicians),
			}
		}
		if len(r.Products) == 0 {
			t.Rows = append(t.Rows, shared(text(r.Product), text(r.EPARegNumber), text(r.MixtureRate), plain("")))
			continue
		}
		for _, p := range r.Products {
			total := ""
			rate, okRate := parseLeading(p.Rate)
			acres, okArea := parseLeading(area)
			if okRate && okArea {
				total = strconv.FormatFloat(rate*acres, 'f', 1, 64) + " " + p.RateUnit
			}
			t.Rows = append(t.Rows, shared(
				text(p.Product),
				text(orDefault(p.EPARegNumber, "N/A")),
				text(p.Rate+" "+p.RateUnit),
				text(total),
			))
		}
	}
	return t
}

// FSA578 builds the acreage summary. Irrigation falls back to the field and
// then to non-irrigated; share falls back to the field and then to 100.
func (b Builder) FSA578(records []domain.PlantRecord, fields []domain.Field) Table {
	idx := fieldIndex(fields)
	t := Table{Name: "FSA 578", Header: FSA578Header}
	for _, r := range records {
		f := idx[r.FieldID]
		irrigation := r.IrrigationPractice
		if irrigation == "" {
			irrigation = f.IrrigationPractice
		}
		code := "NI"
		if irrigation == domain.IrrigationIrrigated {
			code = "IR"
		}
		share := 100.0
		switch {
		case r.ProducerShare != nil:
			share = *r.ProducerShare
		case f.ProducerShare != nil:
			share = *f.ProducerShare
		}
		t.Rows = append(t.Rows, []Cell{
			plain(f.FSAFarmNumber),
			plain(f.FSATractNumber),
			plain(f.FSAFieldNumber),
			plain(FormatMeasurement(r.Acreage)),
			text(r.Crop),
			text(orDefault(r.IntendedUse, f.IntendedUse)),
			plain(code),
			plain(strconv.FormatFloat(share, 'f', 0, 64) + "%"),
			plain(orDate(r.PlantDate, r.Timestamp, b.Location)),
		})
	}
	return t
}

// Harvest builds the harvest report.
func (b Builder) Harvest(records []domain.HarvestRecord, fields []domain.Field) Table {
	idx := fieldIndex(fields)
	t := Table{Name: "Harvest", Header: HarvestHeader}
	for _, r := range records {
		f := idx[r.FieldID]
		destination := "Elevator/Sale"
		if r.Destination == domain.DestinationBin {
			destination = "On-Farm Bin"
		}
		t.Rows = append(t.Rows, []Cell{
			plain(orDate(r.HarvestDate, r.Timestamp, b.Location)),
			plain(r.FieldName),
			text(r.Crop),
			plain(FormatMeasurement(r.Bushels)),
			plain(FormatMeasurement(r.MoisturePercent)),
			plain(destination),
			plain(FormatMeasurement(r.LandlordSplitPercent)),
			plain(f.FSAFarmNumber),
			plain(f.FSATractNumber),
		})
	}
	return t
}

// MissouriSprayLog writes the spray log CSV using local time.
func MissouriSprayLog(w io.Writer, records []domain.SprayRecord, fields []domain.Field) error {
	return WriteCSV(w, Builder{}.SprayLog(records, fields))
}

// FSA578 writes the acreage summary CSV using local time.
func FSA578(w io.Writer, records []domain.PlantRecord, fields []domain.Field) error {
	return WriteCSV(w, Builder{}.FSA578(records, fields))
}

// HarvestReport writes the harvest CSV using local time.
func HarvestReport(w io.Writer, records []domain.HarvestRecord, fields []domain.Field) error {
	return WriteCSV(w, Builder{}.Harvest(records, fields))
}

// FileName returns the dated download name used for a report, such as
// Missouri_Spray_Log_2025-06-01.csv.
func FileName(prefix string, at time.Time) string {
	return prefix + "_" + at.Format("2006-01-02") + ".csv"
}
