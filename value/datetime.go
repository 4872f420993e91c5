package value

import (
	"fmt"

	"github.com/edgeo-scada/bacnet-device/bacnet"
)

// Date is a BACnet DATE: year-1900, month, day, day-of-week, each field
// using 0xFF ("unspecified"/wildcard) the way the standard allows.
type Date struct {
	Year      int // calendar year, e.g. 2026; meaningless when YearRaw == 0xFF (unspecified)
	YearRaw   uint8
	Month     uint8 // 1-12, or 0xFF for "any"
	Day       uint8 // 1-31, or 0xFF for "any"
	DayOfWeek uint8 // 1=Monday..7=Sunday, or 0xFF for "any"
}

func (d Date) String() string {
	if d.YearRaw == 0xFF {
		return fmt.Sprintf("*-%02d-%02d", d.Month, d.Day)
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// TimeOfDay is a BACnet TIME: hour, minute, second, hundredths, each field
// using 0xFF for "any".
type TimeOfDay struct {
	Hour       uint8
	Minute     uint8
	Second     uint8
	Hundredths uint8
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d.%02d", t.Hour, t.Minute, t.Second, t.Hundredths)
}

func decodeDate(data []byte) Date {
	if len(data) < 4 {
		return Date{YearRaw: 0xFF, Month: 0xFF, Day: 0xFF, DayOfWeek: 0xFF}
	}
	yearRaw := data[0]
	return Date{
		Year:      1900 + int(yearRaw),
		YearRaw:   yearRaw,
		Month:     data[1],
		Day:       data[2],
		DayOfWeek: data[3],
	}
}

func encodeDate(d Date) []byte {
	body := []byte{d.YearRaw, d.Month, d.Day, d.DayOfWeek}
	header := bacnet.EncodeTag(uint8(TagDate), bacnet.TagClassApplication, len(body))
	return append(header, body...)
}

func decodeTimeOfDay(data []byte) TimeOfDay {
	if len(data) < 4 {
		return TimeOfDay{Hour: 0xFF, Minute: 0xFF, Second: 0xFF, Hundredths: 0xFF}
	}
	return TimeOfDay{
		Hour:       data[0],
		Minute:     data[1],
		Second:     data[2],
		Hundredths: data[3],
	}
}

func encodeTimeOfDay(t TimeOfDay) []byte {
	body := []byte{t.Hour, t.Minute, t.Second, t.Hundredths}
	header := bacnet.EncodeTag(uint8(TagTime), bacnet.TagClassApplication, len(body))
	return append(header, body...)
}
