package e

// Constants in here define error codes that are unique to a package/file.
// The first two characters define the package, within this repo, and the
// second two characters define the file within that package. Furthermore,
// when creating an error, the e.W/e.N funcs should be called, which will
// also take a two character unique id within the file.
//
// Valid values for the characters are: 0-9 and A-Z. Packages starting with a
// number should be reserved for packages within the retail-lib repository.
// Other repository packages may use any code starting with a letter. Note,
// this does not guarantee uniqueness across all repos, but it is assumed
// that other repos will not include eachother. If they do, some extra checks
// should be taken to ensure unique error codes.

const (
	// package: migration
	Code0001 = "0001" // package:migration | migration/orchestrator.go
	Code0002 = "0002" // package:migration | migration/script_list.go
	Code0003 = "0003" // package:migration/sqlmodel | migration/sqlmodel/tenant_migration.go
	Code0004 = "0004" // package:migration/sqlmodel | migration/sqlmodel/audit.go
	Code0005 = "0005" // package:migration | migration/lock.go
	Code0006 = "0006" // package:migration | migration/migration.go

	// package: sql
	Code0201 = "0201" // package:sql | sql/sql.go
	Code0202 = "0202" // package:sql | sql/row.go
	Code0203 = "0203" // package:sql | sql/rows.go
	Code0204 = "0204" // package:sql | sql/txn.go
	Code0205 = "0205" // package:sql | sql/engine.go
	Code0206 = "0206" // package:sql | sql/builder.go

	// package: tenant
	Code0301 = "0301" // package:tenant | tenant/registry.go
	Code0302 = "0302" // package:tenant/sqlmodel | tenant/sqlmodel/tenant.go

	// package: migration/engine
	Code0401 = "0401" // package:migration/engine | migration/engine/adapter.go
	Code0402 = "0402" // package:migration/engine | migration/engine/sqlite.go
	Code0403 = "0403" // package:migration/engine | migration/engine/postgres.go
	Code0404 = "0404" // package:migration/engine | migration/engine/mysql.go
	Code0405 = "0405" // package:migration/engine | migration/engine/mssql.go

	// package: kafka
	Code0800 = "0800" // package:kafka | kafka/connection.go
	Code0801 = "0801" // package:kafka/aws/ec2 | kafka/aws/ec2/sasl.go

	// package: events
	Code0901 = "0901" // package:events | events/publisher.go
	Code0902 = "0902" // package:events | events/consumer.go
)
