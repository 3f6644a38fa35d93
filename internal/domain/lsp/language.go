package lsp

import "path/filepath"

// ServerConfig defines how to launch a language server for one language family.
type ServerConfig struct {
	Command    []string // e.g. ["gopls", "serve"]
	Extensions []string // file extensions this family serves, e.g. [".go"]
	LanguageID string   // languageId sent in textDocument/didOpen
}

// FallbackLanguageID is sent for files whose extension matches no family.
const FallbackLanguageID = "plaintext"

// DefaultServers maps language family names to their default server
// configurations. All servers communicate via stdio.
var DefaultServers = map[string]ServerConfig{
	"go": {
		Command:    []string{"gopls", "serve"},
		Extensions: []string{".go"},
		LanguageID: "go",
	},
	"python": {
		Command:    []string{"pyright-langserver", "--stdio"},
		Extensions: []string{".py", ".pyi"},
		LanguageID: "python",
	},
	"typescript": {
		Command:    []string{"typescript-language-server", "--stdio"},
		Extensions: []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs"},
		LanguageID: "typescript",
	},
	"rust": {
		Command:    []string{"rust-analyzer"},
		Extensions: []string{".rs"},
		LanguageID: "rust",
	},
}

// languageIDs is the total extension -> languageId mapping used for didOpen.
// Extensions not listed here fall back to FallbackLanguageID.
var languageIDs = map[string]string{
	".go":   "go",
	".py":   "python",
	".pyi":  "python",
	".ts":   "typescript",
	".tsx":  "typescriptreact",
	".js":   "javascript",
	".jsx":  "javascriptreact",
	".mjs":  "javascript",
	".cjs":  "javascript",
	".rs":   "rust",
	".json": "json",
	".yaml": "yaml",
	".yml":  "yaml",
	".md":   "markdown",
	".html": "html",
	".css":  "css",
	".sh":   "shellscript",
	".c":    "c",
	".h":    "c",
	".cpp":  "cpp",
	".hpp":  "cpp",
	".java": "java",
	".sql":  "sql",
	".toml": "toml",
}

// LanguageIDForPath returns the languageId for a file path.
// Unknown extensions map to FallbackLanguageID, never an error.
func LanguageIDForPath(path string) string {
	if id, ok := languageIDs[filepath.Ext(path)]; ok {
		return id
	}
	return FallbackLanguageID
}
