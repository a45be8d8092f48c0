package schema

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrInvalid marks every payload validation failure.
var ErrInvalid = errors.New("schema: invalid payload")

// ValidationError names the first field of a payload that failed its
// constraint.
type ValidationError struct {
	Message string
	Field   string
	Reason  string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("schema: message=%s: %s", e.Message, e.Reason)
	}
	return fmt.Sprintf("schema: message=%s field=%s: %s", e.Message, e.Field, e.Reason)
}

func (e ValidationError) Unwrap() error {
	return ErrInvalid
}

// Checker records the first failed constraint of one message. Checks after
// the first failure are skipped, so the reported field is deterministic.
type Checker struct {
	message string
	err     error
}

func For(message string) *Checker {
	return &Checker{message: message}
}

func (c *Checker) fail(field, reason string) *Checker {
	if c.err == nil {
		c.err = ValidationError{Message: c.message, Field: field, Reason: reason}
	}
	return c
}

// Required rejects an empty string field, then applies the length limit.
func (c *Checker) Required(field, value string, maxLen int) *Checker {
	if c.err != nil {
		return c
	}
	if value == "" {
		return c.fail(field, "missing required field")
	}
	return c.MaxLen(field, value, maxLen)
}

// MaxLen bounds an optional string field. maxLen <= 0 means unbounded.
func (c *Checker) MaxLen(field, value string, maxLen int) *Checker {
	if c.err != nil || maxLen <= 0 {
		return c
	}
	if len(value) > maxLen {
		return c.fail(field, fmt.Sprintf("exceeds %d characters", maxLen))
	}
	return c
}

// Present rejects a missing field the caller has already tested for.
func (c *Checker) Present(field string, ok bool) *Checker {
	if c.err != nil || ok {
		return c
	}
	return c.fail(field, "missing required field")
}

func (c *Checker) Time(field string, value time.Time) *Checker {
	return c.Present(field, !value.IsZero())
}

// RequiredInt rejects an absent integer field. Integer fields whose zero
// value is legal are decoded into pointers so absence stays visible.
func (c *Checker) RequiredInt(field string, value *int) *Checker {
	return c.Present(field, value != nil)
}

// RequiredMin is RequiredInt followed by Min.
func (c *Checker) RequiredMin(field string, value *int, min int) *Checker {
	if value == nil {
		return c.Present(field, false)
	}
	return c.Min(field, *value, min)
}

func (c *Checker) Min(field string, value, min int) *Checker {
	if c.err != nil || value >= min {
		return c
	}
	return c.fail(field, fmt.Sprintf("must be >= %d", min))
}

// OneOf rejects a value outside the enumeration. An empty value is reported
// as missing.
func (c *Checker) OneOf(field, value string, allowed ...string) *Checker {
	if c.err != nil {
		return c
	}
	if value == "" {
		return c.fail(field, "missing required field")
	}
	for _, a := range allowed {
		if value == a {
			return c
		}
	}
	return c.fail(field, fmt.Sprintf("unexpected value %q", value))
}

// OptionalOneOf is OneOf for a field that may be omitted.
func (c *Checker) OptionalOneOf(field, value string, allowed ...string) *Checker {
	if value == "" {
		return c
	}
	return c.OneOf(field, value, allowed...)
}

// Check records a constraint the caller evaluated itself.
func (c *Checker) Check(field string, ok bool, reason string) *Checker {
	if c.err != nil || ok {
		return c
	}
	return c.fail(field, reason)
}

// Nested attaches the failure of a sub-structure under field.
func (c *Checker) Nested(field string, err error) *Checker {
	if c.err != nil || err == nil {
		return c
	}
	var ve ValidationError
	if errors.As(err, &ve) {
		return c.fail(field+"."+ve.Field, ve.Reason)
	}
	return c.fail(field, err.Error())
}

func (c *Checker) Err() error {
	if c.err != nil {
		log.Debug().Str("message", c.message).Err(c.err).Msg("schema.Checker.Err invalid payload")
	}
	return c.err
}
