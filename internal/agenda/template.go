package agenda

import (
	"strings"

	"github.com/soren-n/tickle/internal/cmdutil"
	"github.com/soren-n/tickle/internal/tickleerrors"
)

// Template is a compiled proc: an ordered list of positional parameter
// names and a printf-style skeleton string with one "%s" per parameter, in
// the order the parameters appear.
type Template struct {
	params   []string
	skeleton string
}

// CompileTemplate compiles a raw proc template (a sequence of string parts,
// each either a literal token or, if prefixed with "$", a positional
// parameter name) into a Template.
func CompileTemplate(parts []string) *Template {
	var params []string
	var skeleton []string
	for _, part := range parts {
		if len(part) == 0 {
			continue
		}
		if strings.HasPrefix(part, "$") {
			params = append(params, part[1:])
			skeleton = append(skeleton, "%s")
			continue
		}
		skeleton = append(skeleton, part)
	}
	return &Template{params: params, skeleton: strings.Join(skeleton, " ")}
}

// Apply substitutes args into the template and splits the result into an
// argv-style command vector. Each parameter's value list is quote-joined
// per cmdutil.JoinQuoted, substituted in parameter order, and the whole
// result is re-split with cmdutil.SplitQuoted, dropping empty elements.
func (t *Template) Apply(args map[string][]string) ([]string, error) {
	values := make([]any, len(t.params))
	for i, param := range t.params {
		v, ok := args[param]
		if !ok {
			return nil, &tickleerrors.MissingArgument{Param: param}
		}
		values[i] = cmdutil.JoinQuoted(v)
	}

	rendered := sprintfSkeleton(t.skeleton, values)
	return cmdutil.SplitQuoted(rendered), nil
}

// sprintfSkeleton substitutes "%s" occurrences in order with values,
// without requiring the fmt verb-counting/type-checking machinery of
// fmt.Sprintf (the values are always plain strings).
func sprintfSkeleton(skeleton string, values []any) string {
	var b strings.Builder
	vi := 0
	for i := 0; i < len(skeleton); i++ {
		if skeleton[i] == '%' && i+1 < len(skeleton) && skeleton[i+1] == 's' && vi < len(values) {
			b.WriteString(values[vi].(string))
			vi++
			i++
			continue
		}
		b.WriteByte(skeleton[i])
	}
	return b.String()
}
