package session

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed data/holidays.yaml
var holidayData []byte

type earlyClose struct {
	Date  string `yaml:"date"`
	Close string `yaml:"close"`
}

type holidayCalendar struct {
	FullClosures []string     `yaml:"full_closures"`
	EarlyCloses  []earlyClose `yaml:"early_closes"`
}

type holidayFile struct {
	Calendars map[string]holidayCalendar `yaml:"calendars"`
}

// holidaySet is the parsed, lookup-friendly form of the packaged calendar
// data: full closures as a date set, early closes as date -> wall-clock close.
type holidaySet struct {
	full  map[string]struct{}
	early map[string]string
}

func loadHolidays() (map[string]holidaySet, error) {
	var file holidayFile
	if err := yaml.Unmarshal(holidayData, &file); err != nil {
		return nil, fmt.Errorf("parse packaged holiday data: %w", err)
	}

	sets := make(map[string]holidaySet, len(file.Calendars))
	for name, cal := range file.Calendars {
		set := holidaySet{
			full:  make(map[string]struct{}, len(cal.FullClosures)),
			early: make(map[string]string, len(cal.EarlyCloses)),
		}
		for _, d := range cal.FullClosures {
			if _, err := parseCivilDate(d); err != nil {
				return nil, fmt.Errorf("calendar %s full closure %q: %w", name, d, err)
			}
			set.full[d] = struct{}{}
		}
		for _, ec := range cal.EarlyCloses {
			if _, err := parseCivilDate(ec.Date); err != nil {
				return nil, fmt.Errorf("calendar %s early close %q: %w", name, ec.Date, err)
			}
			if _, _, err := parseWallClock(ec.Close); err != nil {
				return nil, fmt.Errorf("calendar %s early close %s: %w", name, ec.Date, err)
			}
			set.early[ec.Date] = ec.Close
		}
		sets[name] = set
	}
	return sets, nil
}
