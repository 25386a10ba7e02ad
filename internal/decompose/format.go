package decompose

import (
	"database/sql/driver"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Null is the literal emitted for absent values.
const Null = "NULL"

// DateTimeLayout is how every date/time value is written to the destination.
const DateTimeLayout = "2006-01-02 15:04:05"

// Literal converts one source value into a SQL literal ready to be placed in
// a VALUES list: NULL for nil, empty and "none" (any case); a quoted
// 'YYYY-MM-DD HH:MM:SS' for dates; every other value stringified with single
// quotes doubled.
func Literal(v any) string {
	switch x := v.(type) {
	case nil:
		return Null
	case string:
		return text(x)
	case []byte:
		if x == nil {
			return Null
		}
		return text(string(x))
	case time.Time:
		return quote(x.Format(DateTimeLayout))
	case *time.Time:
		if x == nil {
			return Null
		}
		return quote(x.Format(DateTimeLayout))
	case bool:
		if x {
			return quote("1")
		}
		return quote("0")
	case int:
		return quote(strconv.Itoa(x))
	case int32:
		return quote(strconv.FormatInt(int64(x), 10))
	case int64:
		return quote(strconv.FormatInt(x, 10))
	case float32:
		return quote(strconv.FormatFloat(float64(x), 'f', -1, 32))
	case float64:
		return quote(strconv.FormatFloat(x, 'f', -1, 64))
	case *big.Rat:
		if x == nil {
			return Null
		}
		return quote(ratString(x))
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil {
			return text(fmt.Sprint(x))
		}
		if _, again := dv.(driver.Valuer); again {
			return text(fmt.Sprint(dv))
		}
		return Literal(dv)
	case fmt.Stringer:
		return text(x.String())
	default:
		return text(fmt.Sprint(x))
	}
}

// IsNull reports whether a formatted literal is the NULL literal.
func IsNull(lit string) bool { return lit == Null }

func text(s string) string {
	if s == "" || strings.EqualFold(s, "none") {
		return Null
	}
	return quote(normalize(s))
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

var cleanText = transform.Chain(runes.ReplaceIllFormed(), norm.NFC)

// normalize composes the string to NFC and replaces ill-formed UTF-8.
func normalize(s string) string {
	if utf8.ValidString(s) && norm.NFC.IsNormalString(s) {
		return s
	}
	out, _, err := transform.String(cleanText, s)
	if err != nil {
		return s
	}
	return out
}

// maxScale is the widest scale SQL Server's decimal type accepts.
const maxScale = 38

// ratString prints a decimal without exponent and without trailing zeros.
// Terminating fractions are printed exactly; others are cut at maxScale.
func ratString(r *big.Rat) string {
	if r.IsInt() {
		return r.Num().String()
	}
	prec, exact := decimalPlaces(r.Denom())
	if !exact || prec > maxScale {
		prec = maxScale
	}
	s := strings.TrimRight(r.FloatString(prec), "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" {
		return "0"
	}
	return s
}

// decimalPlaces returns the fractional digits needed to print 1/d exactly,
// and false when d has a prime factor other than 2 and 5.
func decimalPlaces(d *big.Int) (int, bool) {
	n := new(big.Int).Set(d)
	twos := 0
	for n.Sign() > 0 && n.Bit(0) == 0 {
		n.Rsh(n, 1)
		twos++
	}
	five := big.NewInt(5)
	q, m := new(big.Int), new(big.Int)
	fives := 0
	for {
		q.QuoRem(n, five, m)
		if m.Sign() != 0 {
			break
		}
		n.Set(q)
		fives++
	}
	return max(twos, fives), n.Cmp(big.NewInt(1)) == 0
}
