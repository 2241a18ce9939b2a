package agenda

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
)

// taskHash computes the stable 128-bit content fingerprint over
// {proc, args, sorted(flows), sorted(inputs), sorted(outputs)}. description
// is deliberately excluded: renaming a task's desc alone must not change
// its identity.
func taskHash(proc string, args map[string][]string, flows, inputs, outputs []string) string {
	var b strings.Builder

	b.WriteString("proc:")
	b.WriteString(proc)
	b.WriteByte('\n')

	argNames := make([]string, 0, len(args))
	for name := range args {
		argNames = append(argNames, name)
	}
	sort.Strings(argNames)
	for _, name := range argNames {
		b.WriteString("arg:")
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(strings.Join(args[name], ","))
		b.WriteByte('\n')
	}

	flowsSorted := append([]string(nil), flows...)
	sort.Strings(flowsSorted)
	for _, f := range flowsSorted {
		b.WriteString("flow:")
		b.WriteString(f)
		b.WriteByte('\n')
	}

	inputsSorted := append([]string(nil), inputs...)
	sort.Strings(inputsSorted)
	for _, in := range inputsSorted {
		b.WriteString("input:")
		b.WriteString(in)
		b.WriteByte('\n')
	}

	outputsSorted := append([]string(nil), outputs...)
	sort.Strings(outputsSorted)
	for _, out := range outputsSorted {
		b.WriteString("output:")
		b.WriteString(out)
		b.WriteByte('\n')
	}

	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
