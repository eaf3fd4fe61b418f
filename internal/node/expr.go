package node

import (
	"encoding/json"
	"fmt"
)

// ExprKind tags an Expr
type ExprKind string

const (
	ExprNil    ExprKind = "ExprNil"
	ExprBool   ExprKind = "ExprBool"
	ExprInt    ExprKind = "ExprInt"
	ExprString ExprKind = "ExprString"
	ExprBytes  ExprKind = "ExprBytes"
	ExprURI    ExprKind = "ExprUri"
	ExprUnforg ExprKind = "ExprUnforg"
	ExprTuple  ExprKind = "ExprTuple"
	ExprList   ExprKind = "ExprList"
	ExprSet    ExprKind = "ExprSet"
	ExprMap    ExprKind = "ExprMap"
)

// UnforgKind is the variant of an unforgeable name
type UnforgKind string

const (
	UnforgPrivate  UnforgKind = "UnforgPrivate"
	UnforgDeploy   UnforgKind = "UnforgDeploy"
	UnforgDeployer UnforgKind = "UnforgDeployer"
)

// Expr mirrors the node's dynamic expression model as returned by explore-deploy.
// Only the fields that belong to Kind are set.
type Expr struct {
	Kind    ExprKind
	Bool    bool
	Int     int64
	Text    string // String, Bytes (hex), Uri and Unforg data
	Unforg  UnforgKind
	Items   []Expr          // Tuple, List, Set
	Entries map[string]Expr // Map
}

// UnmarshalJSON decodes the externally tagged form, e.g. {"ExprInt":{"data":5}}
func (e *Expr) UnmarshalJSON(data []byte) error {
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return err
	}
	if len(tagged) != 1 {
		return fmt.Errorf("expression must have exactly one tag, got %d", len(tagged))
	}

	for tag, body := range tagged {
		kind := ExprKind(tag)
		switch kind {
		case ExprNil:
			*e = Expr{Kind: ExprNil}
			return nil

		case ExprBool:
			var w struct {
				Data *bool `json:"data"`
			}
			if err := decodeData(kind, body, &w); err != nil {
				return err
			}
			if w.Data == nil {
				return missingData(kind)
			}
			*e = Expr{Kind: kind, Bool: *w.Data}

		case ExprInt:
			var w struct {
				Data *json.Number `json:"data"`
			}
			if err := decodeData(kind, body, &w); err != nil {
				return err
			}
			if w.Data == nil {
				return missingData(kind)
			}
			n, err := w.Data.Int64()
			if err != nil {
				return fmt.Errorf("%s: %w", kind, err)
			}
			*e = Expr{Kind: kind, Int: n}

		case ExprString, ExprBytes, ExprURI:
			var w struct {
				Data *string `json:"data"`
			}
			if err := decodeData(kind, body, &w); err != nil {
				return err
			}
			if w.Data == nil {
				return missingData(kind)
			}
			*e = Expr{Kind: kind, Text: *w.Data}

		case ExprUnforg:
			var w struct {
				Data map[UnforgKind]struct {
					Data string `json:"data"`
				} `json:"data"`
			}
			if err := decodeData(kind, body, &w); err != nil {
				return err
			}
			if len(w.Data) != 1 {
				return fmt.Errorf("%s: expected one unforgeable variant, got %d", kind, len(w.Data))
			}
			for variant, name := range w.Data {
				switch variant {
				case UnforgPrivate, UnforgDeploy, UnforgDeployer:
				default:
					return fmt.Errorf("%s: unknown variant %q", kind, variant)
				}
				*e = Expr{Kind: kind, Unforg: variant, Text: name.Data}
			}

		case ExprTuple, ExprList, ExprSet:
			var w struct {
				Data []Expr `json:"data"`
			}
			if err := decodeData(kind, body, &w); err != nil {
				return err
			}
			*e = Expr{Kind: kind, Items: w.Data}

		case ExprMap:
			var w struct {
				Data map[string]Expr `json:"data"`
			}
			if err := decodeData(kind, body, &w); err != nil {
				return err
			}
			*e = Expr{Kind: kind, Entries: w.Data}

		default:
			return fmt.Errorf("unknown expression %q", tag)
		}
	}
	return nil
}

func decodeData(kind ExprKind, body json.RawMessage, into any) error {
	if err := json.Unmarshal(body, into); err != nil {
		return fmt.Errorf("%s: %w", kind, err)
	}
	return nil
}

func missingData(kind ExprKind) error {
	return fmt.Errorf("%s: missing data", kind)
}

// Generic converts the expression into plain Go data: nil, bool, int64, string,
// []any and map[string]any. Bytes, URIs and unforgeable names become their string form.
func (e Expr) Generic() any {
	switch e.Kind {
	case ExprBool:
		return e.Bool
	case ExprInt:
		return e.Int
	case ExprString, ExprBytes, ExprURI, ExprUnforg:
		return e.Text
	case ExprTuple, ExprList, ExprSet:
		items := make([]any, len(e.Items))
		for i, item := range e.Items {
			items[i] = item.Generic()
		}
		return items
	case ExprMap:
		entries := make(map[string]any, len(e.Entries))
		for k, v := range e.Entries {
			entries[k] = v.Generic()
		}
		return entries
	default:
		return nil
	}
}
