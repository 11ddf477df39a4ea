package cmd

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/processone/fluux-messenger-sub003/types/store"
)

// parseTime accepts RFC 3339 or unix milliseconds. An empty value is no
// bound.
func parseTime(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}

	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		t := time.UnixMilli(ms)
		return &t, nil
	}

	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return nil, errors.Errorf(
			"invalid time %q, expected RFC 3339 or unix milliseconds",
			value,
		)
	}
	return &t, nil
}

func printContent(w io.Writer, sender string, c *store.Content) {
	body := c.Body
	switch {
	case c.RetractedAt != nil:
		body = "(retracted)"
	case c.Edited:
		body += " (edited)"
	}

	fmt.Fprintf(
		w,
		"%s  %-24s %s\n",
		c.Timestamp.UTC().Format(time.RFC3339),
		sender,
		body,
	)
}
