// Package rate parses rates such as "100/1s" and enforces them with a sliding window.
package rate

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Rate struct {
	Count  uint
	Period time.Duration
}

func Parse(s string) (Rate, error) {
	var r Rate
	err := r.UnmarshalText([]byte(s))
	return r, err
}

func (d Rate) IsZero() bool {
	return d.Period == 0
}
func (d Rate) IsPositive() bool {
	return d.Count > 0 && d.Period > 0
}
func (d Rate) String() string {
	if d.IsZero() {
		return "0"
	}
	return fmt.Sprintf("%d/%s", d.Count, d.Period)
}

// Interval is the average spacing between two events at this rate.
func (d Rate) Interval() time.Duration {
	if d.Count == 0 {
		return d.Period
	}
	return d.Period / time.Duration(d.Count)
}

func (d Rate) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText accepts "0", "<count>/<duration>", "<count>/<unit>" or a bare duration
// meaning one event per period.
func (d *Rate) UnmarshalText(text []byte) (err error) {
	if len(text) == 0 || string(text) == "0" {
		*d = Rate{}
		return nil
	}
	before, after, ok := strings.Cut(string(text), "/")
	if !ok {
		d.Count = 1
		d.Period, err = time.ParseDuration(string(text))
		return errors.Wrapf(err, "invalid rate %q", text)
	}
	n, err := strconv.ParseUint(before, 10, 32)
	if err != nil {
		return errors.Wrapf(err, "invalid rate %q", text)
	}
	d.Count = uint(n)
	if d.Period, err = time.ParseDuration(after); err != nil {
		d.Period, err = time.ParseDuration("1" + after)
	}
	if err == nil && d.Period <= 0 {
		err = errors.New("period must be positive")
	}
	return errors.Wrapf(err, "invalid rate %q", text)
}
func (d Rate) MarshalYAML() (any, error) {
	return d.String(), nil
}
func (d *Rate) UnmarshalYAML(node *yaml.Node) error {
	var res string
	if err := node.Decode(&res); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(res))
}
func (d Rate) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}
func (d *Rate) UnmarshalJSON(data []byte) error {
	var res string
	if err := json.Unmarshal(data, &res); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(res))
}
