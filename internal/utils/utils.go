package utils

// cKeywords can't be used as identifiers in the generated C and CUDA code.
var cKeywords = SetWith(
	"auto", "bool", "break", "case", "char", "const", "continue", "default", "do", "double",
	"else", "enum", "extern", "float", "for", "goto", "half", "if", "inline", "int", "long",
	"register", "restrict", "return", "short", "signed", "sizeof", "static", "struct", "switch",
	"typedef", "union", "unsigned", "void", "volatile", "while",
	"blockIdx", "threadIdx", "blockDim", "gridDim", "NULL",
)

// NormalizeIdentifier converts a tensor, variable or function name into a valid C identifier:
// only letters, digits and underscores are kept.
//
// Invalid characters are replaced with underscores, a leading digit gets an underscore prefix and
// C keywords get an underscore suffix.
func NormalizeIdentifier(name string) string {
	if name == "" {
		return ""
	}
	result := make([]rune, 0, len(name)+1)
	if name[0] >= '0' && name[0] <= '9' {
		result = append(result, '_')
	}
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			result = append(result, r)
		} else {
			result = append(result, '_')
		}
	}
	normalized := string(result)
	if cKeywords.Has(normalized) {
		normalized += "_"
	}
	return normalized
}
