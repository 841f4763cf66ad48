package domain

import "time"

// User is one end user of the bridge, keyed by their platform contact id.
type User struct {
	ID        int64     `db:"id"`
	ContactID string    `db:"contact_id"`
	Name      string    `db:"name"`
	Number    string    `db:"number"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ErrorRecord associates a failure message with a download job.
type ErrorRecord struct {
	ID         int64     `db:"id"`
	Message    string    `db:"message"`
	DownloadID string    `db:"download_id"`
	CreatedAt  time.Time `db:"created_at"`
}
