package instrument

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/sweep.report/internal/param"
)

// ParamSpec names an instrument channel and the commands that read and
// drive it. An empty GetCmd makes the parameter write-only; an empty SetCmd
// makes it read-only. Set commands are formatted as SetCmd immediately
// followed by the value, e.g. "V=" yields "V=1.5".
type ParamSpec struct {
	Name   string
	Label  string
	Unit   string
	GetCmd string
	SetCmd string

	// Timeout bounds each query; zero means DefaultQueryTimeout.
	Timeout time.Duration
}

// Param exposes one instrument channel as a measurable parameter. Reads
// query the instrument over the mux and parse the reply as a float; writes
// send the formatted set command.
func (m *Mux[T]) Param(spec ParamSpec) *param.Parameter {
	timeout := spec.Timeout
	if timeout == 0 {
		timeout = DefaultQueryTimeout
	}

	p := &param.Parameter{Name: spec.Name, Label: spec.Label, Unit: spec.Unit}

	if spec.GetCmd != "" {
		p.GetFn = func() (any, error) {
			line, err := m.Query(context.Background(), spec.GetCmd, timeout)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", spec.Name, err)
			}
			v, err := ParseReading(line)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", spec.Name, err)
			}
			return v, nil
		}
	}

	if spec.SetCmd != "" {
		p.SetFn = func(v any) error {
			f, err := toFloat(v)
			if err != nil {
				return fmt.Errorf("setting %s: %w", spec.Name, err)
			}
			command := fmt.Sprintf("%s%g", spec.SetCmd, f)
			if err := m.SendCommand(command); err != nil {
				return fmt.Errorf("setting %s: %w", spec.Name, err)
			}
			return nil
		}
	}

	return p
}

// ParseReading extracts the numeric value from an instrument reply line.
// Replies of the form "NAME=1.23" yield the part after the last '='; bare
// numeric lines are parsed whole.
func ParseReading(line string) (float64, error) {
	s := strings.TrimSpace(line)
	if i := strings.LastIndexByte(s, '='); i >= 0 {
		s = s[i+1:]
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable reading %q", line)
	}
	return v, nil
}

func toFloat(v any) (float64, error) {
	switch vv := v.(type) {
	case float64:
		return vv, nil
	case float32:
		return float64(vv), nil
	case int:
		return float64(vv), nil
	case int64:
		return float64(vv), nil
	default:
		return 0, fmt.Errorf("unsupported value type %T", v)
	}
}
