package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformedContent is returned when a record's nested JSON content cannot be parsed.
var ErrMalformedContent = errors.New("malformed nested content")

// Text is a JSON scalar the portal sends either as a string or a number.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		err := json.Unmarshal(data, &s)
		if err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	*t = Text(strings.TrimSpace(string(data)))
	return nil
}

func (t *Text) String() string {
	if t == nil {
		return ""
	}
	return string(*t)
}

type TemperatureReading struct {
	Value Text `json:"temprature"`
	Time  Text `json:"temprature_time"`
}

// DailyLog is the JSON document kept inside the content field of daily logs, both the
// one written by the nursery and the one written by parents. Absent fields stay nil.
type DailyLog struct {
	Memo *Text `json:"memo"`

	Meal        *Text `json:"meal"`
	MealMorning *Text `json:"meal_morning"`
	MealEvening *Text `json:"meal_evening"`

	MoodMorning   *Text `json:"mood_morning"`
	MoodAfternoon *Text `json:"mood_afternoon"`
	MoodEvening   *Text `json:"mood_evening"`

	Sleepings *Text `json:"sleepings"`
	Sleep     *Text `json:"sleep"`
	Wake      *Text `json:"wake"`

	EvacuationMorning      *Text `json:"evacuation_morning"`
	EvacuationMorningTimes *Text `json:"evacuation_morning_times"`
	EvacuationEvening      *Text `json:"evacuation_evening"`
	EvacuationEveningTimes *Text `json:"evacuation_evening_times"`

	Temperature     *Text                `json:"temprature"`
	TemperatureTime *Text                `json:"temprature_time"`
	Temperatures    []TemperatureReading `json:"tempratures"`
}

// ParseDailyLog decodes the nested content of a daily log.
func ParseDailyLog(content string) (DailyLog, error) {
	var log DailyLog
	err := json.Unmarshal([]byte(content), &log)
	if err != nil {
		return DailyLog{}, fmt.Errorf("%w: %w", ErrMalformedContent, err)
	}
	return log, nil
}

// Readings returns every temperature reading, the single reading of parent logs included.
func (l DailyLog) Readings() []TemperatureReading {
	out := append([]TemperatureReading(nil), l.Temperatures...)
	if l.Temperature != nil {
		reading := TemperatureReading{Value: *l.Temperature}
		if l.TemperatureTime != nil {
			reading.Time = *l.TemperatureTime
		}
		out = append(out, reading)
	}
	return out
}

var timeOfDayLayouts = []string{
	"15:04",
	"15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.RFC3339,
}

// TimeOfDay normalizes the time of a reading to HH:MM, ok is false when it could not
// be parsed and the raw value is returned.
func TimeOfDay(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timeOfDayLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t.Format("15:04"), true
		}
	}
	return raw, false
}
