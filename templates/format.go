package templates

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const timestampLayout = "Jan 02, 2006 15:04 MST"

// MoneyFormatter prints amounts as "<ISO code> <grouped number>" using the
// currency's standard number of decimals.
type MoneyFormatter struct {
	printer *message.Printer
}

func NewMoneyFormatter(locale string) MoneyFormatter {
	tag := language.AmericanEnglish
	if strings.TrimSpace(locale) != "" {
		if parsed, err := language.Parse(locale); err == nil {
			tag = parsed
		}
	}
	return MoneyFormatter{printer: message.NewPrinter(tag)}
}

func (f MoneyFormatter) Format(amount decimal.Decimal, code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	unit, err := currency.ParseISO(code)
	if err != nil {
		return strings.TrimSpace(code + " " + amount.StringFixed(2))
	}
	scale, _ := currency.Standard.Rounding(unit)
	value, _ := amount.Round(int32(scale)).Float64()
	printer := f.printer
	if printer == nil {
		printer = message.NewPrinter(language.AmericanEnglish)
	}
	return unit.String() + " " + printer.Sprintf("%."+strconv.Itoa(scale)+"f", value)
}

func FormatTimestamp(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(timestampLayout)
}
