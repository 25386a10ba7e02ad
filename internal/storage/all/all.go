// Package all wires every built-in backend into the storage factory. Import
// it for side effects only:
//
//	import _ "migrator/internal/storage/all"
package all

import (
	_ "migrator/internal/storage/hana"
	_ "migrator/internal/storage/mssql"
	_ "migrator/internal/storage/postgres"
	_ "migrator/internal/storage/sqlite"
)
