package datasource

import (
	"encoding/csv"
	"errors"
	"io"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Format is a delimited-text dialect. The quote character is always '"'.
type Format struct {
	Delimiter        rune
	Comment          rune
	HasHeader        bool
	TrimLeadingSpace bool
	UseCRLF          bool
}

// DefaultFormat is the RFC 4180 dialect: comma separated, double-quote
// escaping, header row first.
func DefaultFormat() Format {
	return Format{Delimiter: ',', HasHeader: true}
}

// Validate validates the dialect.
func (f Format) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Delimiter, validation.Required, validation.By(delimiterRule)),
		validation.Field(&f.Comment, validation.By(func(v any) error {
			c, _ := v.(rune)
			if c == 0 {
				return nil
			}
			if err := delimiterRule(c); err != nil {
				return err
			}
			if c == f.Delimiter {
				return errors.New("must differ from the delimiter")
			}
			return nil
		})),
	)
}

func delimiterRule(v any) error {
	r, _ := v.(rune)
	if r == 0 {
		return nil
	}
	if r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError || !utf8.ValidRune(r) {
		return errors.New("must be a valid rune other than quote, CR or LF")
	}
	return nil
}

func (f Format) reader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = f.Delimiter
	cr.Comment = f.Comment
	cr.TrimLeadingSpace = f.TrimLeadingSpace
	return cr
}

func (f Format) writer(w io.Writer) *csv.Writer {
	cw := csv.NewWriter(w)
	cw.Comma = f.Delimiter
	cw.UseCRLF = f.UseCRLF
	return cw
}
