// internal/domain/user/entity.go
package user

import (
	"database/sql"
	"time"
)

// User is a chat user known to the bot, keyed by their Telegram id. Created
// lazily on first contact; Timezone is the default zone applied to new
// subscriptions unless the input says otherwise.
type User struct {
	TelegramID int64          `json:"telegram_id" db:"telegram_id"`
	Username   sql.NullString `json:"username,omitempty" db:"username"`
	Timezone   string         `json:"timezone" db:"timezone"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at" db:"updated_at"`
}
