// assets/embed.go
//
// Files compiled into the binary so the server runs without a data directory:
//   - base_room.txt    the 16x16 room template every condition starts from
//   - conditions.yaml  condition and stimulus catalog
//   - sql/*.sql        schema migrations, applied in lexical order

package assets

import (
	"bufio"
	"embed"
	"io/fs"
	"strings"
)

//go:embed base_room.txt conditions.yaml sql/*.sql
var FS embed.FS

// BaseRoom returns the template room text, comment lines removed.
func BaseRoom() (string, error) {
	lines, err := readLines("base_room.txt")
	if err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

// Conditions returns the raw catalog YAML.
func Conditions() ([]byte, error) {
	return FS.ReadFile("conditions.yaml")
}

// Migrations exposes the sql directory as its own filesystem.
func Migrations() fs.FS {
	sub, err := fs.Sub(FS, "sql")
	if err != nil {
		// sql/ is always embedded
		panic(err)
	}
	return sub
}

func readLines(name string) ([]string, error) {
	f, err := FS.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		s := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(s) == "" || strings.HasPrefix(s, "#") {
			continue
		}
		out = append(out, s)
	}
	return out, sc.Err()
}
