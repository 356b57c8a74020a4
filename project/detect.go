package project

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// DetectName determines the project name for a scanned root from its
// build manifest, falling back to the directory's base name. Parsing is
// deliberately shallow: the first plausible declaration wins, and any
// unreadable or unparseable manifest just defers to the next candidate.
func DetectName(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}

	if name := cargoName(filepath.Join(dir, "Cargo.toml")); name != "" {
		return name
	}
	if name := packageJSONName(filepath.Join(dir, "package.json")); name != "" {
		return name
	}
	if name := goModName(filepath.Join(dir, "go.mod")); name != "" {
		return name
	}
	if name := sbtName(filepath.Join(dir, "build.sbt")); name != "" {
		return name
	}
	if name := mavenArtifactID(filepath.Join(dir, "pom.xml")); name != "" {
		return name
	}
	for _, gradleFile := range []string{"build.gradle", "build.gradle.kts"} {
		if name := gradleProjectName(filepath.Join(dir, gradleFile)); name != "" {
			return name
		}
	}
	if name := mixAppName(filepath.Join(dir, "mix.exs")); name != "" {
		return name
	}
	if name := pyprojectName(filepath.Join(dir, "pyproject.toml")); name != "" {
		return name
	}
	if name := setupPyName(filepath.Join(dir, "setup.py")); name != "" {
		return name
	}

	if base := filepath.Base(dir); base != "" && base != "." && base != string(filepath.Separator) {
		return base
	}
	return "unknown"
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}

func cargoName(path string) string {
	content, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "name") && strings.Contains(line, "=") {
			return unquote(strings.SplitN(line, "=", 2)[1])
		}
	}
	return ""
}

func packageJSONName(path string) string {
	content, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var pkg struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(content, &pkg); err != nil {
		return ""
	}
	return pkg.Name
}

func goModName(path string) string {
	content, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	firstLine := strings.SplitN(string(content), "\n", 2)[0]
	if !strings.HasPrefix(firstLine, "module ") {
		return ""
	}
	modulePath := strings.TrimSpace(strings.TrimPrefix(firstLine, "module "))
	if modulePath == "" {
		return ""
	}
	parts := strings.Split(modulePath, "/")
	return parts[len(parts)-1]
}

func sbtName(path string) string {
	content, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "name :=") {
			return unquote(strings.SplitN(line, ":=", 2)[1])
		}
	}
	return ""
}

func mavenArtifactID(path string) string {
	content, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	text := string(content)
	start := strings.Index(text, "<artifactId>")
	if start < 0 {
		return ""
	}
	rest := text[start+len("<artifactId>"):]
	end := strings.Index(rest, "</artifactId>")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}

func gradleProjectName(path string) string {
	content, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "rootProject.name") && strings.Contains(line, "=") {
			return unquote(strings.SplitN(line, "=", 2)[1])
		}
	}
	return ""
}

func mixAppName(path string) string {
	content, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "app:") {
			continue
		}
		rest := strings.TrimSpace(strings.TrimPrefix(line, "app:"))
		if !strings.HasPrefix(rest, ":") {
			continue
		}
		name := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(rest, ":"), ","))
		if name != "" {
			return name
		}
	}
	return ""
}

func pyprojectName(path string) string {
	content, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "name =") {
			return unquote(strings.SplitN(line, "=", 2)[1])
		}
	}
	return ""
}

func setupPyName(path string) string {
	content, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	text := string(content)
	idx := strings.Index(text, "name=")
	if idx < 0 {
		return ""
	}
	rest := text[idx+len("name="):]

	quoteIdx := -1
	var quote byte
	for i := 0; i < len(rest); i++ {
		if rest[i] == '"' || rest[i] == '\'' {
			quoteIdx = i
			quote = rest[i]
			break
		}
	}
	if quoteIdx < 0 {
		return ""
	}
	rest = rest[quoteIdx+1:]
	end := strings.IndexByte(rest, quote)
	if end < 0 {
		return ""
	}
	return rest[:end]
}
