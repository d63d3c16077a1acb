package production

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// RunCodeType is the TYPE segment of production run codes.
const RunCodeType = "RUN"

// DefaultSiteCode is used when neither the caller nor the policy names a site.
const DefaultSiteCode = "DUNA"

// MaxCodeSeq is the largest sequence a 4-digit SEQ segment can hold.
const MaxCodeSeq = 9999

var (
	codePattern = regexp.MustCompile(`^([A-Z0-9]+)-(\d{8})-([A-Z]{4})-(\d{4})$`)
	sitePattern = regexp.MustCompile(`^[A-Z]{4}$`)
)

// Code is a parsed {TYPE}-{YYYYMMDD}-{SITE}-{SEQ} identifier.
type Code struct {
	Type string
	Date time.Time
	Site string
	Seq  int
}

func (c Code) String() string {
	return FormatCode(c.Type, c.Date, c.Site, c.Seq)
}

// ParseCode validates the format and calendar date of a human-readable code.
func ParseCode(raw string) (Code, error) {
	m := codePattern.FindStringSubmatch(raw)
	if m == nil {
		return Code{}, Errorf(ErrValidation, "code %q does not match TYPE-YYYYMMDD-SITE-NNNN", raw)
	}
	date, err := time.Parse("20060102", m[2])
	if err != nil {
		return Code{}, Errorf(ErrValidation, "code %q has an invalid date %q", raw, m[2])
	}
	seq, _ := strconv.Atoi(m[4])
	if seq == 0 {
		return Code{}, Errorf(ErrValidation, "code %q has a zero sequence", raw)
	}
	return Code{Type: m[1], Date: date, Site: m[3], Seq: seq}, nil
}

func FormatCode(codeType string, date time.Time, site string, seq int) string {
	return fmt.Sprintf("%s-%s-%s-%04d", codeType, date.UTC().Format("20060102"), site, seq)
}

// SequencePrefix is the counter key shared by every code of one type, day and site.
func SequencePrefix(codeType string, date time.Time, site string) string {
	return fmt.Sprintf("%s-%s-%s", codeType, date.UTC().Format("20060102"), site)
}

func ValidSiteCode(site string) bool {
	return sitePattern.MatchString(site)
}

// ValidateLotCode checks format and that the TYPE segment equals the lot type.
func ValidateLotCode(raw, lotType string) (Code, error) {
	c, err := ParseCode(raw)
	if err != nil {
		return c, err
	}
	if !IsLotType(c.Type) {
		return c, Errorf(ErrValidation, "code %q has unknown lot type %q", raw, c.Type)
	}
	if c.Type != lotType {
		return c, Errorf(ErrValidation, "code %q type %q does not match lot type %q", raw, c.Type, lotType)
	}
	return c, nil
}

func ValidateRunCode(raw string) (Code, error) {
	c, err := ParseCode(raw)
	if err != nil {
		return c, err
	}
	if c.Type != RunCodeType {
		return c, Errorf(ErrValidation, "run code %q must start with %s", raw, RunCodeType)
	}
	return c, nil
}
