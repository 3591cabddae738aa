/*
Package aggregate implements count, sum, and average reductions over a
base query's result set, with Firestore-matching promotion rules for sum
(Int64 unless any contribution or the running total needs Double) and
Null-average-of-empty.

The evaluation shape — gather, then fold into named scalars — follows the
same gather-then-reduce structure a metrics collector uses to fold raw
samples into named gauges.
*/
package aggregate

import (
	"math"

	"github.com/cuemby/firestash/pkg/query"
	"github.com/cuemby/firestash/pkg/store"
	"github.com/cuemby/firestash/pkg/values"
)

// Kind identifies an aggregator.
type Kind int

const (
	Count Kind = iota
	Sum
	Average
)

// Aggregator is one named reduction over the base query's result set.
type Aggregator struct {
	Alias string
	Kind  Kind
	Field string // unused for Count
}

// Run executes q against st and reduces the result set through every
// aggregator, keyed by alias.
func Run(st store.Store, q query.Query, aggs []Aggregator) (map[string]values.Value, error) {
	docs, err := query.Run(st, q)
	if err != nil {
		return nil, err
	}

	out := make(map[string]values.Value, len(aggs))
	for _, a := range aggs {
		switch a.Kind {
		case Count:
			out[a.Alias] = values.Int64(int64(len(docs)))
		case Sum:
			out[a.Alias] = sumField(docs, a.Field)
		case Average:
			out[a.Alias] = averageField(docs, a.Field)
		default:
			return nil, values.InvalidArgument("aggregation", "unknown aggregator kind")
		}
	}
	return out, nil
}

func numericContributions(docs []store.Document, field string) ([]values.Value, bool) {
	var out []values.Value
	allInt := true
	for _, d := range docs {
		v, ok := d.Fields.GetField(field)
		if !ok || !v.IsNumber() {
			continue
		}
		if v.Kind != values.KindInt64 {
			allInt = false
		}
		out = append(out, v)
	}
	return out, allInt
}

func sumField(docs []store.Document, field string) values.Value {
	vals, allInt := numericContributions(docs, field)
	if len(vals) == 0 {
		return values.Int64(0)
	}
	if allInt {
		var total int64
		overflow := false
		for _, v := range vals {
			n := v.AsInt64()
			if (n > 0 && total > math.MaxInt64-n) || (n < 0 && total < math.MinInt64-n) {
				overflow = true
				break
			}
			total += n
		}
		if !overflow {
			return values.Int64(total)
		}
	}
	var total float64
	for _, v := range vals {
		total += v.AsFloat64()
	}
	return values.Double(total)
}

func averageField(docs []store.Document, field string) values.Value {
	vals, _ := numericContributions(docs, field)
	if len(vals) == 0 {
		return values.Null()
	}
	var total float64
	for _, v := range vals {
		total += v.AsFloat64()
	}
	return values.Double(total / float64(len(vals)))
}
