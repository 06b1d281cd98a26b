package model

import "time"

// Dossier — дело (коллекция файлов).
type Dossier struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// Tag — тег файла.
type Tag struct {
	ID   int64
	Name string
}
