package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// TileGrid defined JSON data type, need to implements driver.Valuer, sql.Scanner interface
type TileGrid [][]int

// Value return json value, implement driver.Valuer interface
func (t TileGrid) Value() (driver.Value, error) {
	if t == nil {
		return nil, nil
	}
	ba, err := json.Marshal([][]int(t))
	return string(ba), err
}

// Scan scan value into the grid, implements sql.Scanner interface
func (t *TileGrid) Scan(val interface{}) error {
	var ba []byte
	switch v := val.(type) {
	case []byte:
		ba = v
	case string:
		ba = []byte(v)
	case nil:
		*t = nil
		return nil
	default:
		return errors.New(fmt.Sprint("failed to unmarshal tile grid value:", val))
	}
	g := [][]int{}
	err := json.Unmarshal(ba, &g)
	*t = TileGrid(g)
	return err
}

// GormDataType gorm common data type
func (TileGrid) GormDataType() string {
	return "tilegrid"
}

// GormDBDataType gorm db data type
func (TileGrid) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "sqlite":
		return "JSON"
	case "mysql":
		return "JSON"
	case "postgres":
		return "JSONB"
	}
	return ""
}
