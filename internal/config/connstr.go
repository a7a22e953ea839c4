package config

import (
	"fmt"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
)

// MakeConnStr resolves the database source refs into a keyword/value
// connection string understood by both pgx and database/sql.
func MakeConnStr(db Database) (string, error) {
	host, err := commoncfg.LoadValueFromSourceRef(db.Host)
	if err != nil {
		return "", fmt.Errorf("resolving database host: %w", err)
	}

	user, err := commoncfg.LoadValueFromSourceRef(db.User)
	if err != nil {
		return "", fmt.Errorf("resolving database user: %w", err)
	}

	password, err := commoncfg.LoadValueFromSourceRef(db.Password)
	if err != nil {
		return "", fmt.Errorf("resolving database password: %w", err)
	}

	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s",
		host, user, string(password), db.Name, db.Port), nil
}
