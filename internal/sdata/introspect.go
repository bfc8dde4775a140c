package sdata

import (
	"context"
	"database/sql"
	"fmt"
)

// Introspect runs this package's per-dialect column, primary-key and
// foreign-key queries (selected by dialectName) against db and builds an
// immutable DBModel, applying metadata rules (if any). This is
// the "introspect(dialect, connection_factory, metadata_rules)" external
// entry point from §6, split so the connection/dialect-type-string wiring
// lives in internal/executor and this package only needs a *sql.DB plus the
// dialect name to pick the right row shape.
func Introspect(ctx context.Context, db *sql.DB, dialectName string, ml *MetadataLoader) (*DBModel, error) {
	switch dialectName {
	case "postgres":
		return introspectInfoSchema(ctx, db, postgresColumnsQ, postgresFKsQ, postgresPKsQ, ml)
	case "mysql", "mariadb":
		return introspectInfoSchema(ctx, db, mysqlColumnsQ, mysqlFKsQ, mysqlPKsQ, ml)
	case "sqlite":
		return introspectSQLite(ctx, db, ml)
	case "sqlserver":
		return introspectInfoSchema(ctx, db, mssqlColumnsQ, mssqlFKsQ, mssqlPKsQ, ml)
	default:
		return nil, fmt.Errorf("introspect: unsupported dialect %q", dialectName)
	}
}

const postgresColumnsQ = `SELECT table_schema, table_name, column_name, data_type,
  (is_nullable = 'YES'), (column_default LIKE 'nextval(%')
FROM information_schema.columns
WHERE table_schema NOT IN ('pg_catalog','information_schema')
ORDER BY table_schema, table_name, ordinal_position`

const postgresFKsQ = `SELECT tc.table_schema, tc.table_name, kcu.column_name,
  ccu.table_schema, ccu.table_name, ccu.column_name, tc.constraint_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
JOIN information_schema.constraint_column_usage ccu ON tc.constraint_name = ccu.constraint_name AND tc.table_schema = ccu.table_schema
WHERE tc.constraint_type = 'FOREIGN KEY'`

const postgresPKsQ = `SELECT tc.table_schema, tc.table_name, kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
WHERE tc.constraint_type = 'PRIMARY KEY'`

const mysqlColumnsQ = `SELECT table_schema, table_name, column_name, column_type,
  (is_nullable = 'YES'), (extra LIKE '%auto_increment%')
FROM information_schema.columns WHERE table_schema = DATABASE()
ORDER BY table_schema, table_name, ordinal_position`

const mysqlFKsQ = `SELECT table_schema, table_name, column_name,
  referenced_table_schema, referenced_table_name, referenced_column_name, constraint_name
FROM information_schema.key_column_usage
WHERE table_schema = DATABASE() AND referenced_table_name IS NOT NULL`

const mysqlPKsQ = `SELECT table_schema, table_name, column_name
FROM information_schema.key_column_usage
WHERE table_schema = DATABASE() AND constraint_name = 'PRIMARY'`

const mssqlColumnsQ = `SELECT s.name, t.name, c.name, ty.name, c.is_nullable, c.is_identity
FROM sys.columns c
JOIN sys.tables t ON t.object_id = c.object_id
JOIN sys.schemas s ON s.schema_id = t.schema_id
JOIN sys.types ty ON ty.user_type_id = c.user_type_id
ORDER BY s.name, t.name, c.column_id`

const mssqlFKsQ = `SELECT sch.name, tp.name, cp.name, refsch.name, tr.name, cr.name, fk.name
FROM sys.foreign_keys fk
JOIN sys.foreign_key_columns fkc ON fkc.constraint_object_id = fk.object_id
JOIN sys.tables tp ON tp.object_id = fkc.parent_object_id
JOIN sys.schemas sch ON sch.schema_id = tp.schema_id
JOIN sys.columns cp ON cp.object_id = tp.object_id AND cp.column_id = fkc.parent_column_id
JOIN sys.tables tr ON tr.object_id = fkc.referenced_object_id
JOIN sys.schemas refsch ON refsch.schema_id = tr.schema_id
JOIN sys.columns cr ON cr.object_id = tr.object_id AND cr.column_id = fkc.referenced_column_id`

const mssqlPKsQ = `SELECT s.name, t.name, c.name
FROM sys.index_columns ic
JOIN sys.indexes i ON i.object_id = ic.object_id AND i.index_id = ic.index_id AND i.is_primary_key = 1
JOIN sys.tables t ON t.object_id = ic.object_id
JOIN sys.schemas s ON s.schema_id = t.schema_id
JOIN sys.columns c ON c.object_id = ic.object_id AND c.column_id = ic.column_id`

func introspectInfoSchema(ctx context.Context, db *sql.DB, colQ, fkQ, pkQ string, ml *MetadataLoader) (*DBModel, error) {
	b := NewBuilder()

	type colRow struct {
		schema, table, name, typ string
		nullable, identity       bool
	}
	cols := map[string][]colRow{}
	pks := map[string]map[string]bool{}

	rows, err := db.QueryContext(ctx, colQ)
	if err != nil {
		return nil, fmt.Errorf("introspect columns: %w", err)
	}
	for rows.Next() {
		var r colRow
		if err := rows.Scan(&r.schema, &r.table, &r.name, &r.typ, &r.nullable, &r.identity); err != nil {
			rows.Close()
			return nil, err
		}
		key := schemaKey(r.schema, r.table)
		cols[key] = append(cols[key], r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	pkRows, err := db.QueryContext(ctx, pkQ)
	if err != nil {
		return nil, fmt.Errorf("introspect primary keys: %w", err)
	}
	for pkRows.Next() {
		var schema, table, col string
		if err := pkRows.Scan(&schema, &table, &col); err != nil {
			pkRows.Close()
			return nil, err
		}
		key := schemaKey(schema, table)
		if pks[key] == nil {
			pks[key] = map[string]bool{}
		}
		pks[key][col] = true
	}
	pkRows.Close()
	if err := pkRows.Err(); err != nil {
		return nil, err
	}

	for key, crs := range cols {
		var columns []Column
		for _, r := range crs {
			columns = append(columns, Column{
				Name: r.name, GraphQLName: r.name, DataType: r.typ,
				IsNullable: r.nullable, IsIdentity: r.identity,
				IsPrimaryKey: pks[key][r.name],
				Metadata:     map[string]string{},
			})
		}
		b.AddTable(crs[0].schema, crs[0].table, columns)
	}

	fkRows, err := db.QueryContext(ctx, fkQ)
	if err != nil {
		return nil, fmt.Errorf("introspect foreign keys: %w", err)
	}
	type fkAgg struct {
		childSchema, childTable, parentSchema, parentTable, name string
		childCols, parentCols                                    []string
	}
	fks := map[string]*fkAgg{}
	var order []string
	for fkRows.Next() {
		var cs, ct, cc, ps, pt, pc, name string
		if err := fkRows.Scan(&cs, &ct, &cc, &ps, &pt, &pc, &name); err != nil {
			fkRows.Close()
			return nil, err
		}
		if fks[name] == nil {
			fks[name] = &fkAgg{childSchema: cs, childTable: ct, parentSchema: ps, parentTable: pt, name: name}
			order = append(order, name)
		}
		fks[name].childCols = append(fks[name].childCols, cc)
		fks[name].parentCols = append(fks[name].parentCols, pc)
	}
	fkRows.Close()
	if err := fkRows.Err(); err != nil {
		return nil, err
	}
	for _, name := range order {
		fk := fks[name]
		b.AddForeignKey(fk.childSchema, fk.childTable, fk.childCols, fk.parentSchema, fk.parentTable, fk.parentCols, fk.name)
	}

	if ml != nil {
		ml.ApplyToBuilder(b)
	}
	m := b.Build()
	return m, nil
}

func introspectSQLite(ctx context.Context, db *sql.DB, ml *MetadataLoader) (*DBModel, error) {
	b := NewBuilder()

	tblRows, err := db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return nil, err
	}
	var tables []string
	for tblRows.Next() {
		var name string
		if err := tblRows.Scan(&name); err != nil {
			tblRows.Close()
			return nil, err
		}
		tables = append(tables, name)
	}
	tblRows.Close()

	for _, table := range tables {
		colRows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT name, type, "notnull", pk FROM pragma_table_info(?)`), table)
		if err != nil {
			return nil, err
		}
		var columns []Column
		for colRows.Next() {
			var name, typ string
			var notnull, pk int
			if err := colRows.Scan(&name, &typ, &notnull, &pk); err != nil {
				colRows.Close()
				return nil, err
			}
			columns = append(columns, Column{
				Name: name, GraphQLName: name, DataType: typ,
				IsNullable: notnull == 0, IsPrimaryKey: pk > 0,
				Metadata: map[string]string{},
			})
		}
		colRows.Close()
		b.AddTable("", table, columns)

		fkRows, err := db.QueryContext(ctx, `SELECT "table", "from", "to", id FROM pragma_foreign_key_list(?)`, table)
		if err != nil {
			return nil, err
		}
		type fk struct {
			parentTable, from, to string
			id                    int
		}
		var fkList []fk
		for fkRows.Next() {
			var f fk
			if err := fkRows.Scan(&f.parentTable, &f.from, &f.to, &f.id); err != nil {
				fkRows.Close()
				return nil, err
			}
			fkList = append(fkList, f)
		}
		fkRows.Close()
		byID := map[int]*struct {
			parentTable     string
			from, to        []string
		}{}
		var idOrder []int
		for _, f := range fkList {
			e, ok := byID[f.id]
			if !ok {
				e = &struct {
					parentTable string
					from, to    []string
				}{parentTable: f.parentTable}
				byID[f.id] = e
				idOrder = append(idOrder, f.id)
			}
			e.from = append(e.from, f.from)
			e.to = append(e.to, f.to)
		}
		for _, id := range idOrder {
			e := byID[id]
			b.AddForeignKey("", table, e.from, "", e.parentTable, e.to, fmt.Sprintf("%s_fk%d", table, id))
		}
	}

	if ml != nil {
		ml.ApplyToBuilder(b)
	}
	m := b.Build()
	return m, nil
}
