package appfs

import "embed"

// FS holds the SQL migrations and the email templates.
//go:embed migrations assets assets/templates/email/_base.gohtml assets/templates/email/_base.txt
var FS embed.FS
