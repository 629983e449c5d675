package interchange

import (
	"fmt"
	"strconv"
	"strings"
)

const summaryItems = 10

// Summary renders a one-glance description of a named value in the style of
// R's str(), used by %preview:
//
//	rn: num [1:5] -0.626 0.184 -0.836 1.6 0.33
func Summary(name string, v Value) string {
	var b strings.Builder
	b.WriteString(name)
	b.WriteString(": ")

	switch x := v.(type) {
	case nil, Null:
		b.WriteString("NULL")
	case Number, String, Bool:
		b.WriteString(typeAbbrev(x.Kind()))
		b.WriteByte(' ')
		b.WriteString(formatScalar(x))
	case Vector:
		writeVector(&b, x)
	case Table:
		fmt.Fprintf(&b, "'data.frame': %d obs. of %d variables:", x.Rows(), len(x.Columns))
		for _, col := range x.Columns {
			b.WriteString("\n $ ")
			b.WriteString(col.Name)
			b.WriteString(": ")
			writeVector(&b, Vector(col.Values))
		}
	case Opaque:
		fmt.Fprintf(&b, "<%s> %s", x.Type, x.Repr)
	}
	return b.String()
}

func writeVector(b *strings.Builder, v Vector) {
	elem, ok := v.ElemKind()
	switch {
	case len(v) == 0:
		b.WriteString("logi(0)")
		return
	case !ok:
		fmt.Fprintf(b, "List of %d", len(v))
		return
	}

	fmt.Fprintf(b, "%s [1:%d]", typeAbbrev(elem), len(v))
	for i, item := range v {
		if i == summaryItems {
			b.WriteString(" ...")
			break
		}
		b.WriteByte(' ')
		b.WriteString(formatScalar(item))
	}
}

func typeAbbrev(k Kind) string {
	switch k {
	case KindNumber:
		return "num"
	case KindString:
		return "chr"
	case KindBool:
		return "logi"
	default:
		return k.String()
	}
}

func formatScalar(v Value) string {
	switch x := v.(type) {
	case Number:
		return strconv.FormatFloat(float64(x), 'g', 3, 64)
	case String:
		return strconv.Quote(string(x))
	case Bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	default:
		return "NA"
	}
}
