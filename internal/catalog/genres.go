package catalog

import (
	"fmt"
	"strings"
)

// Genres is the closed list of music genres. It is the single source for
// both runtime validation and the CHECK constraints emitted by the schema
// migrations, so the two cannot drift apart.
var Genres = []string{
	"Pop",
	"Rock",
	"Hip-Hop",
	"R&B",
	"Electronic",
	"Jazz",
	"Classical",
	"Country",
	"Folk",
	"Metal",
	"Reggae",
	"Latin",
	"Soundtrack",
}

var genreSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(Genres))
	for _, g := range Genres {
		set[g] = struct{}{}
	}
	return set
}()

// ValidGenre reports whether g is in the closed genre list.
func ValidGenre(g string) bool {
	_, ok := genreSet[g]
	return ok
}

// GenreCheckConstraint renders the SQL CHECK expression for a nullable
// genre column, generated from the same list ValidGenre consults.
func GenreCheckConstraint(column string) string {
	quoted := make([]string, len(Genres))
	for i, g := range Genres {
		quoted[i] = "'" + strings.ReplaceAll(g, "'", "''") + "'"
	}
	return fmt.Sprintf("(%s IS NULL OR %s IN (%s))", column, column, strings.Join(quoted, ", "))
}
