package utils

import (
	"strings"

	mapset "github.com/deckarep/golang-set"
)

// Namespaces the standard libraries put their containers in. libc++ adds
// the inline __1 namespace and libstdc++ the __cxx11 ABI namespace.
var stdNamespaces = mapset.NewSet("std", "__1", "__cxx11", "__debug")

// StripNamespace drops the leading standard namespaces from a qualified
// type name: "std::__1::vector<int>" becomes "vector<int>".
func StripNamespace(name string) string {
	for {
		head, rest, ok := strings.Cut(name, "::")
		if !ok || !stdNamespaces.Contains(head) {
			return name
		}
		name = rest
	}
}

// TemplateName is a type name without its template argument list.
func TemplateName(name string) string {
	if i := strings.IndexByte(name, '<'); i >= 0 {
		return strings.TrimSpace(name[:i])
	}
	return strings.TrimSpace(name)
}

type ContainerKind string

const (
	NotContainer ContainerKind = ""
	Vector       ContainerKind = "vector"
	Array        ContainerKind = "array"
	Pair         ContainerKind = "pair"
	List         ContainerKind = "list"
	Map          ContainerKind = "map"
	UnorderedMap ContainerKind = "unordered_map"
	SharedPtr    ContainerKind = "shared_ptr"
	WeakPtr      ContainerKind = "weak_ptr"
	Any          ContainerKind = "any"
	String       ContainerKind = "string"
)

var containerTemplates = map[string]ContainerKind{
	"vector":        Vector,
	"array":         Array,
	"pair":          Pair,
	"list":          List,
	"map":           Map,
	"unordered_map": UnorderedMap,
	"shared_ptr":    SharedPtr,
	"weak_ptr":      WeakPtr,
	"any":           Any,
	"basic_string":  String,
	"string":        String,
	"wstring":       String,
	"u16string":     String,
	"u32string":     String,
}

// ContainerOf classifies a qualified type name. Only names in a standard
// namespace qualify; a user type called "vector" is not a container.
func ContainerOf(name string) ContainerKind {
	name = strings.TrimPrefix(strings.TrimSpace(name), "const ")
	stripped := StripNamespace(name)
	if stripped == name {
		return NotContainer
	}
	return containerTemplates[TemplateName(stripped)]
}

// Scalar is how a leaf value is printed.
type Scalar int

const (
	Signed Scalar = iota
	Unsigned
	Float
	Bool
	Char
)

// ScalarOf guesses the representation of a basic type from its C name.
func ScalarOf(name string) Scalar {
	name = strings.TrimPrefix(name, "const ")
	switch {
	case name == "bool" || name == "_Bool":
		return Bool
	case name == "float" || name == "double" || name == "long double":
		return Float
	case name == "char" || name == "signed char" || name == "unsigned char" ||
		name == "char8_t" || name == "char16_t" || name == "char32_t" || name == "wchar_t":
		return Char
	case strings.Contains(name, "unsigned") || strings.HasPrefix(name, "uint") || name == "size_t":
		return Unsigned
	}
	return Signed
}

// IntegerTypeName names the fixed width integer of the given byte size.
func IntegerTypeName(size int64, signed bool) string {
	prefix := "uint"
	if signed {
		prefix = "int"
	}
	switch size {
	case 1:
		return prefix + "8"
	case 2:
		return prefix + "16"
	case 4:
		return prefix + "32"
	case 8:
		return prefix + "64"
	}
	return prefix + "32"
}
