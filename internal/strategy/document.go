package strategy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"quantsignal/internal/analysis/indicator"
	"quantsignal/internal/market"
	"quantsignal/internal/strategy/dsl"
)

// DocumentVersion is the only document version Compile accepts.
const DocumentVersion = 1

const documentSchema = `{
  "type": "object",
  "required": ["version", "kind"],
  "additionalProperties": false,
  "properties": {
    "version": {"const": 1},
    "kind": {"enum": ["sma_cross", "ema_cross", "rsi_reversion", "macd_cross", "donchian_breakout", "bollinger_reversion", "buy_and_hold", "rule"]},
    "params": {
      "type": "object",
      "properties": {
        "fast": {"$ref": "#/$defs/window"},
        "slow": {"$ref": "#/$defs/window"},
        "signal": {"$ref": "#/$defs/window"},
        "period": {"$ref": "#/$defs/window"},
        "lower": {"type": "number", "minimum": 0, "maximum": 100},
        "upper": {"type": "number", "minimum": 0, "maximum": 100},
        "k": {"type": "number", "exclusiveMinimum": 0, "maximum": 10},
        "allow_short": {"type": "boolean"},
        "long": {"type": "string", "minLength": 1, "maxLength": 2000},
        "short": {"type": "string", "maxLength": 2000}
      }
    }
  },
  "if": {"properties": {"kind": {"const": "rule"}}},
  "then": {"required": ["params"], "properties": {"params": {"required": ["long"]}}},
  "$defs": {
    "window": {"type": "integer", "minimum": 1, "maximum": 1000}
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource("strategy.json", strings.NewReader(documentSchema)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile("strategy.json")
	})
	return schema, schemaErr
}

// Document is the persisted form of a strategy.
type Document struct {
	Version int            `json:"version"`
	Kind    Kind           `json:"kind"`
	Params  map[string]any `json:"params,omitempty"`
}

// Encode renders the document as compact JSON.
func (d Document) Encode() (string, error) {
	if d.Version == 0 {
		d.Version = DocumentVersion
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Compiled is an executable strategy produced by Compile.
type Compiled struct {
	Kind    Kind
	Summary string
	fn      signalFunc
}

func (c *Compiled) Evaluate(series market.Series) (SignalSeries, error) {
	if len(series) == 0 {
		return SignalSeries{}, nil
	}
	values, err := c.fn(series)
	if err != nil {
		return SignalSeries{}, err
	}
	return NewSignalSeries(series.Dates(), values), nil
}

// Validate runs the schema only, returning a CompileError on failure.
func Validate(code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return compileErr(nil, "empty document")
	}
	if !gjson.Valid(code) {
		return compileErr(nil, "document is not valid JSON")
	}
	sch, err := compiledSchema()
	if err != nil {
		return compileErr(err, "schema unavailable")
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(code)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return compileErr(err, "decode document")
	}
	if err := sch.Validate(v); err != nil {
		return compileErr(err, "document does not match schema")
	}
	return nil
}

// Compile validates code and builds the evaluator it describes. Any problem
// is reported as *CompileError.
func Compile(code string) (*Compiled, error) {
	if err := Validate(code); err != nil {
		return nil, err
	}
	doc := gjson.Parse(code)
	params := doc.Get("params")
	kind := Kind(doc.Get("kind").String())
	allowShort := params.Get("allow_short").Bool()

	window := func(key string, def int) int {
		if v := params.Get(key); v.Exists() {
			return int(v.Int())
		}
		return def
	}
	number := func(key string, def float64) float64 {
		if v := params.Get(key); v.Exists() {
			return v.Float()
		}
		return def
	}

	c := &Compiled{Kind: kind}
	switch kind {
	case KindSMACross, KindEMACross:
		fast, slow := window("fast", 5), window("slow", 20)
		if kind == KindEMACross {
			fast, slow = window("fast", 12), window("slow", 26)
		}
		if fast >= slow {
			return nil, compileErr(nil, "%s: fast (%d) must be smaller than slow (%d)", kind, fast, slow)
		}
		if kind == KindSMACross {
			c.fn = smaCross(fast, slow, allowShort)
		} else {
			c.fn = emaCross(fast, slow, allowShort)
		}
		c.Summary = fmt.Sprintf("%s(%d/%d)", kind, fast, slow)
	case KindRSIReversion:
		period := window("period", 14)
		lower, upper := number("lower", 30), number("upper", 70)
		if period < 2 {
			return nil, compileErr(nil, "rsi_reversion: period must be >= 2")
		}
		if lower >= upper {
			return nil, compileErr(nil, "rsi_reversion: lower (%.1f) must be below upper (%.1f)", lower, upper)
		}
		c.fn = rsiReversion(period, lower, upper)
		c.Summary = fmt.Sprintf("rsi_reversion(%d, %.0f/%.0f)", period, lower, upper)
	case KindMACDCross:
		fast, slow, sig := window("fast", 12), window("slow", 26), window("signal", 9)
		if fast >= slow {
			return nil, compileErr(nil, "macd_cross: fast (%d) must be smaller than slow (%d)", fast, slow)
		}
		c.fn = macdCross(fast, slow, sig, allowShort)
		c.Summary = fmt.Sprintf("macd_cross(%d/%d/%d)", fast, slow, sig)
	case KindDonchian:
		period := window("period", 20)
		c.fn = donchian(period, allowShort)
		c.Summary = fmt.Sprintf("donchian_breakout(%d)", period)
	case KindBollinger:
		period, k := window("period", 20), number("k", 2)
		if period < 2 {
			return nil, compileErr(nil, "bollinger_reversion: period must be >= 2")
		}
		c.fn = bollinger(period, k)
		c.Summary = fmt.Sprintf("bollinger_reversion(%d, %.1f)", period, k)
	case KindBuyAndHold:
		c.fn = buyAndHold()
		c.Summary = "buy_and_hold"
	case KindRule:
		long, err := dsl.Parse(params.Get("long").String())
		if err != nil {
			return nil, compileErr(err, "rule.long")
		}
		var short *dsl.Program
		if src := strings.TrimSpace(params.Get("short").String()); src != "" {
			if short, err = dsl.Parse(src); err != nil {
				return nil, compileErr(err, "rule.short")
			}
		}
		c.fn = rule(long, short)
		c.Summary = "rule(long: " + long.String()
		if short != nil {
			c.Summary += "; short: " + short.String()
		}
		c.Summary += ")"
	default:
		return nil, compileErr(nil, "unsupported kind %q", kind)
	}
	return c, nil
}

// Describe returns a one-line summary of code, or the compile error text.
func Describe(code string) string {
	c, err := Compile(code)
	if err != nil {
		return err.Error()
	}
	return c.Summary
}

// Reference is the document and DSL cheat sheet used by the synthesis prompt
// and the CLI help.
func Reference() string {
	var b strings.Builder
	b.WriteString("Strategy documents are JSON: {\"version\":1,\"kind\":<kind>,\"params\":{...}}\n")
	b.WriteString("kinds:\n")
	b.WriteString("  sma_cross {fast, slow, allow_short}\n")
	b.WriteString("  ema_cross {fast, slow, allow_short}\n")
	b.WriteString("  rsi_reversion {period, lower, upper}\n")
	b.WriteString("  macd_cross {fast, slow, signal, allow_short}\n")
	b.WriteString("  donchian_breakout {period, allow_short}\n")
	b.WriteString("  bollinger_reversion {period, k}\n")
	b.WriteString("  buy_and_hold {}\n")
	b.WriteString("  rule {long: <condition>, short: <condition, optional>}\n")
	fmt.Fprintf(&b, "rule conditions use series open high low close volume, numbers, + - * /, comparisons, and/or/not and functions: %s\n",
		strings.Join(dsl.Functions(), ", "))
	fmt.Fprintf(&b, "window arguments are integer literals between 1 and %d.\n", indicator.MaxPeriod)
	return b.String()
}
