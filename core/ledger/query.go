package ledger

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"civicledger/core/errs"
)

// SortField orders query results by one field.
type SortField struct {
	Field string
	Desc  bool
}

// Query is a parsed selector query.
type Query struct {
	Selector gjson.Result
	Sort     []SortField
	Limit    int
}

// ParseQuery parses {"selector": {...}, "sort": [...], "limit": n}. Sort
// entries are either a field name or {"field": "asc"|"desc"}.
func ParseQuery(raw string) (*Query, error) {
	if !gjson.Valid(raw) {
		return nil, errs.New(errs.CodeInvalidArgument, "query is not valid JSON")
	}
	doc := gjson.Parse(raw)
	sel := doc.Get("selector")
	if !sel.IsObject() {
		return nil, errs.New(errs.CodeInvalidArgument, "query requires a selector object")
	}
	if err := checkSelector(sel); err != nil {
		return nil, err
	}
	q := &Query{Selector: sel}
	for _, s := range doc.Get("sort").Array() {
		switch {
		case s.Type == gjson.String:
			q.Sort = append(q.Sort, SortField{Field: s.String()})
		case s.IsObject():
			var err error
			s.ForEach(func(k, v gjson.Result) bool {
				switch strings.ToLower(v.String()) {
				case "asc":
					q.Sort = append(q.Sort, SortField{Field: k.String()})
				case "desc":
					q.Sort = append(q.Sort, SortField{Field: k.String(), Desc: true})
				default:
					err = errs.Newf(errs.CodeInvalidArgument, "bad sort direction %q", v.String())
					return false
				}
				return true
			})
			if err != nil {
				return nil, err
			}
		default:
			return nil, errs.New(errs.CodeInvalidArgument, "bad sort entry")
		}
	}
	if l := doc.Get("limit"); l.Exists() {
		if l.Type != gjson.Number || l.Int() < 0 {
			return nil, errs.New(errs.CodeInvalidArgument, "limit must be a non-negative number")
		}
		q.Limit = int(l.Int())
	}
	return q, nil
}

var operators = map[string]bool{
	"$eq": true, "$ne": true, "$gt": true, "$gte": true, "$lt": true, "$lte": true,
	"$in": true, "$nin": true, "$exists": true, "$elemMatch": true,
}

func checkSelector(sel gjson.Result) error {
	var err error
	sel.ForEach(func(k, v gjson.Result) bool {
		key := k.String()
		switch {
		case key == "$and" || key == "$or":
			if !v.IsArray() {
				err = errs.Newf(errs.CodeInvalidArgument, "%s takes an array", key)
				return false
			}
			for _, sub := range v.Array() {
				if !sub.IsObject() {
					err = errs.Newf(errs.CodeInvalidArgument, "%s takes selector objects", key)
					return false
				}
				if err = checkSelector(sub); err != nil {
					return false
				}
			}
		case strings.HasPrefix(key, "$"):
			err = errs.Newf(errs.CodeInvalidArgument, "unknown combinator %s", key)
			return false
		case isOperatorMap(v):
			v.ForEach(func(op, arg gjson.Result) bool {
				name := op.String()
				if !operators[name] {
					err = errs.Newf(errs.CodeInvalidArgument, "unknown operator %s", name)
					return false
				}
				if (name == "$in" || name == "$nin") && !arg.IsArray() {
					err = errs.Newf(errs.CodeInvalidArgument, "%s takes an array", name)
					return false
				}
				if name == "$exists" && !arg.IsBool() {
					err = errs.New(errs.CodeInvalidArgument, "$exists takes a boolean")
					return false
				}
				return true
			})
			if err != nil {
				return false
			}
		}
		return true
	})
	return err
}

// isOperatorMap reports whether v is an object whose keys are all operators.
func isOperatorMap(v gjson.Result) bool {
	if !v.IsObject() {
		return false
	}
	nonEmpty := false
	all := true
	v.ForEach(func(k, _ gjson.Result) bool {
		nonEmpty = true
		if !strings.HasPrefix(k.String(), "$") {
			all = false
			return false
		}
		return true
	})
	return nonEmpty && all
}

// Matches reports whether the JSON document satisfies the selector.
func (q *Query) Matches(doc []byte) bool {
	if !gjson.ValidBytes(doc) {
		return false
	}
	return matchSelector(q.Selector, gjson.ParseBytes(doc))
}

func matchSelector(sel, doc gjson.Result) bool {
	ok := true
	sel.ForEach(func(k, v gjson.Result) bool {
		switch key := k.String(); key {
		case "$and":
			for _, sub := range v.Array() {
				if !matchSelector(sub, doc) {
					ok = false
					return false
				}
			}
		case "$or":
			matched := false
			for _, sub := range v.Array() {
				if matchSelector(sub, doc) {
					matched = true
					break
				}
			}
			ok = matched
		default:
			ok = matchField(doc.Get(key), v)
		}
		return ok
	})
	return ok
}

func matchField(field, cond gjson.Result) bool {
	if !isOperatorMap(cond) {
		return field.Exists() && equal(field, cond)
	}
	ok := true
	cond.ForEach(func(op, arg gjson.Result) bool {
		ok = applyOperator(op.String(), field, arg)
		return ok
	})
	return ok
}

func applyOperator(op string, field, arg gjson.Result) bool {
	switch op {
	case "$exists":
		return field.Exists() == arg.Bool()
	case "$eq":
		return field.Exists() && equal(field, arg)
	case "$ne":
		return !field.Exists() || !equal(field, arg)
	case "$gt", "$gte", "$lt", "$lte":
		if !field.Exists() || typeRank(field) != typeRank(arg) {
			return false
		}
		c := compare(field, arg)
		switch op {
		case "$gt":
			return c > 0
		case "$gte":
			return c >= 0
		case "$lt":
			return c < 0
		default:
			return c <= 0
		}
	case "$in":
		if !field.Exists() {
			return false
		}
		for _, a := range arg.Array() {
			if equal(field, a) {
				return true
			}
		}
		return false
	case "$nin":
		for _, a := range arg.Array() {
			if field.Exists() && equal(field, a) {
				return false
			}
		}
		return true
	case "$elemMatch":
		if !field.IsArray() {
			return false
		}
		for _, el := range field.Array() {
			if isOperatorMap(arg) {
				if matchField(el, arg) {
					return true
				}
			} else if el.IsObject() && matchSelector(arg, el) {
				return true
			}
		}
		return false
	}
	return false
}

// typeRank follows CouchDB collation: null < false < true < numbers <
// strings < arrays < objects. Missing fields sort first.
func typeRank(r gjson.Result) int {
	switch {
	case !r.Exists():
		return -1
	case r.Type == gjson.Null:
		return 0
	case r.Type == gjson.False:
		return 1
	case r.Type == gjson.True:
		return 2
	case r.Type == gjson.Number:
		return 3
	case r.Type == gjson.String:
		return 4
	case r.IsArray():
		return 5
	default:
		return 6
	}
}

func compare(a, b gjson.Result) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch ra {
	case 3:
		switch fa, fb := a.Float(), b.Float(); {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case 4:
		return strings.Compare(a.String(), b.String())
	case 5:
		aa, ba := a.Array(), b.Array()
		for i := 0; i < len(aa) && i < len(ba); i++ {
			if c := compare(aa[i], ba[i]); c != 0 {
				return c
			}
		}
		return len(aa) - len(ba)
	case 6:
		return strings.Compare(a.Raw, b.Raw)
	}
	return 0
}

func equal(a, b gjson.Result) bool {
	return typeRank(a) == typeRank(b) && compare(a, b) == 0
}

// Run filters candidates and applies sort and limit. Candidates are in key
// order, which is also the tie-breaker for equal sort keys.
func (q *Query) Run(candidates []KV) []KV {
	matched := make([]KV, 0)
	for _, kv := range candidates {
		if q.Matches(kv.Value) {
			matched = append(matched, kv)
		}
	}
	if len(q.Sort) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			di, dj := gjson.ParseBytes(matched[i].Value), gjson.ParseBytes(matched[j].Value)
			for _, s := range q.Sort {
				c := compare(di.Get(s.Field), dj.Get(s.Field))
				if c == 0 {
					continue
				}
				if s.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched
}

// BuildQuery renders a selector, sort and limit into query JSON.
func BuildQuery(selector map[string]any, sortBy []SortField, limit int) (string, error) {
	q := map[string]any{"selector": selector}
	if len(sortBy) > 0 {
		sorts := make([]map[string]string, 0, len(sortBy))
		for _, s := range sortBy {
			dir := "asc"
			if s.Desc {
				dir = "desc"
			}
			sorts = append(sorts, map[string]string{s.Field: dir})
		}
		q["sort"] = sorts
	}
	if limit > 0 {
		q["limit"] = limit
	}
	raw, err := json.Marshal(q)
	if err != nil {
		return "", errs.Wrap(errs.CodeInvalidArgument, "encode query", err)
	}
	return string(raw), nil
}
