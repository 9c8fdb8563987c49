package migration

import (
	"embed"
	"fmt"
	"sort"
	"strings"

	"github.com/tillworks/retail-lib/e"
	"github.com/tillworks/retail-lib/migration/model"
	"github.com/tillworks/retail-lib/sql"
)

const (
	ECode000201 = e.Code0002 + "01"
	ECode000202 = e.Code0002 + "02"
	ECode000203 = e.Code0002 + "03"
	ECode000204 = e.Code0002 + "04"
	ECode000205 = e.Code0002 + "05"
	ECode000206 = e.Code0002 + "06"
	ECode000207 = e.Code0002 + "07"
	ECode000208 = e.Code0002 + "08"
	ECode000209 = e.Code0002 + "09"
	ECode00020A = e.Code0002 + "0A"
	ECode00020B = e.Code0002 + "0B"
	ECode00020C = e.Code0002 + "0C"
	ECode00020D = e.Code0002 + "0D"
)

const (
	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

// dialectDirs the per-engine subdirectories of a script path. Every script
// must exist in all of them, with both a forward and an inverse file.
var dialectDirs = map[sql.Engine]string{
	sql.EngineSQLite:   "sqlite",
	sql.EnginePostgres: "postgres",
	sql.EngineMySQL:    "mysql",
	sql.EngineMSSQL:    "mssql",
}

// List the authoritative, ordered migration script set. It is a static,
// versioned asset shared by all tenants: script names are total-ordered by
// their timestamp prefix, engine-independently.
type List struct {
	names   []string
	scripts map[string]*model.Script
}

// NewList loads the script set from the embedded file system. The path is
// expected to contain one subdirectory per dialect, each holding
// <name>.up.sql and <name>.down.sql files for every script name. The tables
// manifest declares, per script, the tables that must exist once the script
// has been applied (drives schema validation).
func NewList(path string, migrations embed.FS,
	tables map[string][]string) (l *List, err error) {

	l = &List{
		scripts: map[string]*model.Script{},
	}

	for en, dir := range dialectDirs {
		dirPath := strings.Join([]string{path, dir}, "/")
		dirList, err := migrations.ReadDir(dirPath)
		if err != nil {
			return nil, e.W(err, ECode000201, dirPath)
		}

		for _, file := range dirList {
			if file.IsDir() {
				continue
			}

			name, isUp, err := splitScriptFileName(file.Name())
			if err != nil {
				return nil, e.W(err, ECode000202, file.Name())
			}

			b, err := migrations.ReadFile(strings.Join([]string{dirPath, file.Name()}, "/"))
			if err != nil {
				return nil, e.W(err, ECode000203)
			}

			s, ok := l.scripts[name]
			if !ok {
				s = &model.Script{
					Name:   name,
					Tables: tables[name],
					Up:     map[sql.Engine]string{},
					Down:   map[sql.Engine]string{},
				}
				l.scripts[name] = s
			}

			if isUp {
				s.Up[en] = string(b)
			} else {
				s.Down[en] = string(b)
			}
		}
	}

	// Every script must carry forward and inverse DDL for every dialect
	for name, s := range l.scripts {
		for en := range dialectDirs {
			if _, ok := s.Up[en]; !ok {
				return nil, e.N(ECode000204,
					fmt.Sprintf("script '%s' missing %s up file", name, en))
			}
			if _, ok := s.Down[en]; !ok {
				return nil, e.N(ECode000205,
					fmt.Sprintf("script '%s' missing %s down file", name, en))
			}
		}
		l.names = append(l.names, name)
	}

	sort.Strings(l.names)

	return l, nil
}

// splitScriptFileName parses a script file name into the script name and
// whether it is the forward file. The name is expected to begin with a
// 14 digit timestamp followed by an underscore; the rest can be anything.
func splitScriptFileName(fileName string) (name string, isUp bool, err error) {
	switch {
	case strings.HasSuffix(fileName, upSuffix):
		name, isUp = strings.TrimSuffix(fileName, upSuffix), true
	case strings.HasSuffix(fileName, downSuffix):
		name, isUp = strings.TrimSuffix(fileName, downSuffix), false
	default:
		return "", false, e.N(ECode000206, e.MsgMigrationFileNameInvalid, fileName)
	}

	if len(name) < 16 || name[14] != '_' {
		return "", false, e.N(ECode000207, e.MsgMigrationFileNameInvalid, fileName)
	}
	for _, r := range name[:14] {
		if r < '0' || r > '9' {
			return "", false, e.N(ECode000207, e.MsgMigrationFileNameInvalid, fileName)
		}
	}

	return name, isUp, nil
}

// Names returns all script names in order
func (l *List) Names() []string {
	return l.names
}

// Latest returns the last script name, or empty if the set is empty
func (l *List) Latest() string {
	if len(l.names) == 0 {
		return ""
	}
	return l.names[len(l.names)-1]
}

// Has returns whether the named script exists in the set
func (l *List) Has(name string) bool {
	_, ok := l.scripts[name]
	return ok
}

// Get returns the named script
func (l *List) Get(name string) (s *model.Script, err error) {
	s, ok := l.scripts[name]
	if !ok {
		return nil, e.N(ECode000208, e.MsgMigrationScriptDNE, name)
	}

	return s, nil
}

// Previous returns the script name immediately preceding the named script,
// or empty if it is the first script
func (l *List) Previous(name string) (prev string, err error) {
	idx := sort.SearchStrings(l.names, name)
	if idx >= len(l.names) || l.names[idx] != name {
		return "", e.N(ECode000209, e.MsgMigrationScriptDNE, name)
	}

	if idx == 0 {
		return "", nil
	}

	return l.names[idx-1], nil
}

// Pending computes the scripts after lastApplied up to target (inclusive).
// An empty lastApplied means no migrations applied yet; an empty target
// means the latest script. Pending is always a suffix of the total ordering
// starting just after lastApplied.
func (l *List) Pending(lastApplied, target string) (sList []*model.Script, err error) {
	if lastApplied != "" && !l.Has(lastApplied) {
		return nil, e.N(ECode00020A, e.MsgMigrationScriptDNE, lastApplied)
	}
	if target == "" {
		target = l.Latest()
	} else if !l.Has(target) {
		return nil, e.N(ECode00020B, e.MsgMigrationScriptDNE, target)
	}

	for _, name := range l.names {
		if lastApplied != "" && name <= lastApplied {
			continue
		}
		if name > target {
			break
		}

		sList = append(sList, l.scripts[name])
	}

	return sList, nil
}

// ToRevert computes the scripts to roll back, newest first, to move a tenant
// from lastApplied back to target. An empty target means the empty/base
// state.
func (l *List) ToRevert(lastApplied, target string) (sList []*model.Script, err error) {
	if lastApplied == "" {
		return nil, nil
	}
	if !l.Has(lastApplied) {
		return nil, e.N(ECode00020C, e.MsgMigrationScriptDNE, lastApplied)
	}
	if target != "" && !l.Has(target) {
		return nil, e.N(ECode00020D, e.MsgMigrationScriptDNE, target)
	}

	for i := len(l.names) - 1; i >= 0; i-- {
		name := l.names[i]
		if name > lastApplied {
			continue
		}
		if target != "" && name <= target {
			break
		}

		sList = append(sList, l.scripts[name])
	}

	return sList, nil
}

// RequiredTables returns the union of the table manifests of all scripts up
// to and including upTo. This is the shape the tenant database must have
// after a successful run.
func (l *List) RequiredTables(upTo string) (tables []string) {
	seen := map[string]bool{}
	for _, name := range l.names {
		if upTo == "" || name > upTo {
			break
		}
		for _, t := range l.scripts[name].Tables {
			if !seen[t] {
				seen[t] = true
				tables = append(tables, t)
			}
		}
	}

	return tables
}
