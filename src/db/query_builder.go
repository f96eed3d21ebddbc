package db

import (
	"fmt"
	"strconv"
	"strings"
)

/*
Builds a query out of chunks whose placeholders are written as `$?` and
numbered as they are added:

	qb.Add("WHERE folder = $?", "events")      // WHERE folder = $1
	qb.Add("LIMIT $? OFFSET $?", 24, 48)       // LIMIT $2 OFFSET $3
*/
type QueryBuilder struct {
	sql  strings.Builder
	args []any
}

func (qb *QueryBuilder) Add(sql string, args ...any) {
	parts := strings.Split(sql, "$?")
	if len(parts)-1 != len(args) {
		panic(fmt.Errorf("cannot add chunk to query; expected %d arguments but got %d", len(parts)-1, len(args)))
	}

	qb.sql.WriteString(parts[0])
	for i, arg := range args {
		qb.args = append(qb.args, arg)
		qb.sql.WriteString("$" + strconv.Itoa(len(qb.args)))
		qb.sql.WriteString(parts[i+1])
	}
	qb.sql.WriteString("\n")
}

func (qb *QueryBuilder) String() string {
	return qb.sql.String()
}

func (qb *QueryBuilder) Args() []any {
	return qb.args
}
