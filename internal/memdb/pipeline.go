package memdb

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/docsql/internal/coerce"
	"github.com/roach88/docsql/internal/ir"
)

// runner evaluates pipelines. Sub-pipelines of $lookup share it.
type runner struct {
	db *DB
}

// StageError reports a stage the interpreter rejected.
type StageError struct {
	Index int
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d (%s): %v", e.Index, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func (r *runner) run(ctx context.Context, docs []ir.Document, pipeline ir.Array, vars map[string]ir.Value) ([]ir.Document, error) {
	for i, raw := range pipeline {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stage, ok := raw.(ir.Document)
		if !ok || len(stage) != 1 {
			return nil, &StageError{Index: i, Stage: "?", Err: fmt.Errorf("stage must be a single-field document")}
		}
		name, body := stage[0].Key, stage[0].Value
		out, err := r.stage(ctx, name, body, docs, vars)
		if err != nil {
			return nil, &StageError{Index: i, Stage: name, Err: err}
		}
		docs = out
	}
	return docs, nil
}

func (r *runner) stage(ctx context.Context, name string, body ir.Value, docs []ir.Document, vars map[string]ir.Value) ([]ir.Document, error) {
	switch name {
	case "$match":
		return filter(docs, body, vars)
	case "$project":
		return project(docs, body, vars)
	case "$addFields", "$set":
		return addFields(docs, body, vars)
	case "$unwind":
		return unwind(docs, body)
	case "$sort":
		return sortDocs(docs, body)
	case "$limit":
		n, err := count(body)
		if err != nil {
			return nil, err
		}
		if int64(len(docs)) > n {
			docs = docs[:n]
		}
		return docs, nil
	case "$skip":
		n, err := count(body)
		if err != nil {
			return nil, err
		}
		if int64(len(docs)) <= n {
			return nil, nil
		}
		return docs[n:], nil
	case "$count":
		field, ok := body.(ir.String)
		if !ok || field == "" {
			return nil, fmt.Errorf("$count needs a field name")
		}
		if len(docs) == 0 {
			return nil, nil
		}
		return []ir.Document{ir.D(ir.F(string(field), ir.Int32(len(docs))))}, nil
	case "$group":
		return group(docs, body, vars)
	case "$lookup":
		return r.lookup(ctx, docs, body, vars)
	}
	return nil, fmt.Errorf("unsupported stage")
}

func count(body ir.Value) (int64, error) {
	n, null, err := coerce.ToInt64(body)
	if err != nil || null || n < 0 {
		return 0, fmt.Errorf("want a non-negative integer, got %v", body)
	}
	return n, nil
}

func filter(docs []ir.Document, body ir.Value, vars map[string]ir.Value) ([]ir.Document, error) {
	q, ok := body.(ir.Document)
	if !ok {
		return nil, fmt.Errorf("$match needs a document")
	}
	var out []ir.Document
	for _, doc := range docs {
		ok, err := matches(doc, q, vars)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

// project applies an inclusion or exclusion projection. Computed fields
// whose expression evaluates to a missing value are omitted.
func project(docs []ir.Document, body ir.Value, vars map[string]ir.Value) ([]ir.Document, error) {
	spec, ok := body.(ir.Document)
	if !ok {
		return nil, fmt.Errorf("$project needs a document")
	}

	keepID := true
	exclusion := false
	for _, f := range spec {
		if flag, isFlag := projectionFlag(f.Value); isFlag && !flag {
			if f.Key == ir.IDField {
				keepID = false
			} else {
				exclusion = true
			}
		}
	}

	out := make([]ir.Document, 0, len(docs))
	for _, doc := range docs {
		if exclusion {
			res := doc
			for _, f := range spec {
				if flag, isFlag := projectionFlag(f.Value); isFlag && !flag {
					res = removePath(res, f.Key)
				}
			}
			out = append(out, res)
			continue
		}

		res := ir.Document{}
		if keepID {
			if id, ok := doc.Get(ir.IDField); ok {
				if _, named := spec.Get(ir.IDField); !named {
					res = res.Set(ir.IDField, id)
				}
			}
		}
		for _, f := range spec {
			if flag, isFlag := projectionFlag(f.Value); isFlag {
				if flag {
					if v, ok := lookupPath(doc, f.Key); ok {
						res = res.SetPath(f.Key, v)
					}
				}
				continue
			}
			v, err := eval(doc, f.Value, vars)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", f.Key, err)
			}
			if v != nil {
				res = res.SetPath(f.Key, v)
			}
		}
		out = append(out, res)
	}
	return out, nil
}

// projectionFlag reports whether v is an inclusion (1/true) or exclusion
// (0/false) flag rather than an expression.
func projectionFlag(v ir.Value) (include bool, ok bool) {
	switch x := v.(type) {
	case ir.Bool:
		return bool(x), true
	case ir.Int32, ir.Int64, ir.Double:
		n, _, _ := coerce.ToFloat64(x)
		return n != 0, true
	}
	return false, false
}

func addFields(docs []ir.Document, body ir.Value, vars map[string]ir.Value) ([]ir.Document, error) {
	spec, ok := body.(ir.Document)
	if !ok {
		return nil, fmt.Errorf("$addFields needs a document")
	}
	out := make([]ir.Document, 0, len(docs))
	for _, doc := range docs {
		res := doc
		for _, f := range spec {
			v, err := eval(doc, f.Value, vars)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", f.Key, err)
			}
			if v != nil {
				res = res.SetPath(f.Key, v)
			}
		}
		out = append(out, res)
	}
	return out, nil
}

// unwind emits one document per array element. The element replaces the
// array and includeArrayIndex records its position. Non-array values pass
// through with a null index; missing, null and empty arrays are dropped
// unless preserveNullAndEmptyArrays is set.
func unwind(docs []ir.Document, body ir.Value) ([]ir.Document, error) {
	var path, index string
	preserve := false
	switch b := body.(type) {
	case ir.String:
		path = string(b)
	case ir.Document:
		p, _ := b.Get("path")
		s, ok := p.(ir.String)
		if !ok {
			return nil, fmt.Errorf("$unwind needs a path")
		}
		path = string(s)
		if idx, ok := b.Get("includeArrayIndex"); ok {
			if s, ok := idx.(ir.String); ok {
				index = string(s)
			}
		}
		if pv, ok := b.Get("preserveNullAndEmptyArrays"); ok {
			preserve, _, _ = coerce.ToBool(pv)
		}
	default:
		return nil, fmt.Errorf("$unwind needs a path or a document")
	}
	if !strings.HasPrefix(path, "$") {
		return nil, fmt.Errorf("$unwind path %q must start with $", path)
	}
	path = path[1:]

	var out []ir.Document
	for _, doc := range docs {
		v, present := lookupPath(doc, path)
		arr, isArray := v.(ir.Array)
		switch {
		case isArray && len(arr) > 0:
			for i, elem := range arr {
				res := doc.SetPath(path, elem)
				if index != "" {
					res = res.SetPath(index, ir.Int64(i))
				}
				out = append(out, res)
			}
		case present && !isArray && !ir.IsNull(v):
			res := doc
			if index != "" {
				res = res.SetPath(index, ir.Null{})
			}
			out = append(out, res)
		case preserve:
			res := doc
			if isArray {
				res = removePath(res, path)
			}
			if index != "" {
				res = res.SetPath(index, ir.Null{})
			}
			out = append(out, res)
		}
	}
	return out, nil
}

func sortDocs(docs []ir.Document, body ir.Value) ([]ir.Document, error) {
	spec, ok := body.(ir.Document)
	if !ok || len(spec) == 0 {
		return nil, fmt.Errorf("$sort needs a non-empty document")
	}
	dirs := make([]int, len(spec))
	for i, f := range spec {
		n, _, err := coerce.ToInt64(f.Value)
		if err != nil || (n != 1 && n != -1) {
			return nil, fmt.Errorf("sort direction for %q must be 1 or -1", f.Key)
		}
		dirs[i] = int(n)
	}
	out := slices.Clone(docs)
	slices.SortStableFunc(out, func(a, b ir.Document) int {
		for i, f := range spec {
			av, _ := lookupPath(a, f.Key)
			bv, _ := lookupPath(b, f.Key)
			if c := ir.Compare(av, bv); c != 0 {
				return c * dirs[i]
			}
		}
		return 0
	})
	return out, nil
}

// lookup joins each document with the matching documents of another
// collection, in either the localField/foreignField or the let/pipeline
// form.
func (r *runner) lookup(ctx context.Context, docs []ir.Document, body ir.Value, vars map[string]ir.Value) ([]ir.Document, error) {
	spec, ok := body.(ir.Document)
	if !ok {
		return nil, fmt.Errorf("$lookup needs a document")
	}
	from := stringField(spec, "from")
	as := stringField(spec, "as")
	if from == "" || as == "" {
		return nil, fmt.Errorf("$lookup needs from and as")
	}
	foreign := r.db.snapshot(from)

	local, foreignField := stringField(spec, "localField"), stringField(spec, "foreignField")
	letSpec, _ := spec.Get("let")
	pipelineValue, hasPipeline := spec.Get("pipeline")
	pipeline, _ := pipelineValue.(ir.Array)

	out := make([]ir.Document, 0, len(docs))
	for _, doc := range docs {
		var matched []ir.Document
		if hasPipeline {
			inner := make(map[string]ir.Value, len(vars))
			for k, v := range vars {
				inner[k] = v
			}
			if let, ok := letSpec.(ir.Document); ok {
				for _, f := range let {
					v, err := eval(doc, f.Value, vars)
					if err != nil {
						return nil, fmt.Errorf("let %q: %w", f.Key, err)
					}
					inner[f.Key] = v
				}
			}
			res, err := r.run(ctx, foreign, pipeline, inner)
			if err != nil {
				return nil, err
			}
			matched = res
		} else {
			lv, _ := lookupPath(doc, local)
			for _, f := range foreign {
				fv, _ := lookupPath(f, foreignField)
				if ir.Equal(lv, fv) {
					matched = append(matched, f)
				}
			}
		}
		arr := make(ir.Array, len(matched))
		for i, m := range matched {
			arr[i] = m
		}
		out = append(out, doc.SetPath(as, arr))
	}
	return out, nil
}

func stringField(d ir.Document, key string) string {
	v, _ := d.Get(key)
	s, _ := v.(ir.String)
	return string(s)
}

// lookupPath resolves a dotted path. Field segments applied to an array
// map over its document elements, as field paths do in the store.
func lookupPath(doc ir.Document, path string) (ir.Value, bool) {
	return lookupValue(doc, strings.Split(path, "."))
}

func lookupValue(v ir.Value, segs []string) (ir.Value, bool) {
	if len(segs) == 0 {
		return v, true
	}
	switch node := v.(type) {
	case ir.Document:
		child, ok := node.Get(segs[0])
		if !ok {
			return nil, false
		}
		return lookupValue(child, segs[1:])
	case ir.Array:
		var out ir.Array
		for _, elem := range node {
			if _, isDoc := elem.(ir.Document); !isDoc {
				continue
			}
			if res, ok := lookupValue(elem, segs); ok {
				out = append(out, res)
			}
		}
		return out, true
	}
	return nil, false
}

// removePath returns a copy of doc without the dotted path.
func removePath(doc ir.Document, path string) ir.Document {
	head, rest, nested := strings.Cut(path, ".")
	out := make(ir.Document, 0, len(doc))
	for _, f := range doc {
		switch {
		case f.Key != head:
			out = append(out, f)
		case nested:
			if sub, ok := f.Value.(ir.Document); ok {
				out = append(out, ir.F(f.Key, removePath(sub, rest)))
			} else {
				out = append(out, f)
			}
		}
	}
	return out
}
