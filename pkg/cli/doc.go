// Package cli provides gatectl, the operator command-line tool for warden.
//
// # Commands
//
// route: Evaluate the route guard for one or more paths
//
//	gatectl route /dashboard /login --authenticated --roles admin
//
// With --follow, route replays a navigation stream from stdin through one
// stateful gate and prints only the redirects it issues:
//
//	printf '/dashboard\n@login operator\n/login\n' | gatectl route --follow
//
// resolve: Resolve effective permissions for users against a gateway
//
//	gatectl resolve u1 u2 u3 \
//		--gateway http \
//		--url https://gateway.internal \
//		--workers 8
//
//	gatectl resolve u1 --gateway file --fixture ./permissions.yaml --format json
//
// migrate: Create the permission tables in a SQL gateway database
//
//	gatectl migrate --driver postgres --dsn "$WARDEN_GATEWAY_SQL_DSN"
//
// seed: Load a YAML fixture into a SQL gateway database
//
//	gatectl seed --driver sqlite3 --dsn ./warden.db --fixture ./permissions.yaml
//
// # Configuration
//
// Flags default from the same WARDEN_* environment variables the server reads,
// so an operator shell configured for the server needs no extra flags:
//
//	export WARDEN_GATEWAY_TYPE=sql
//	export WARDEN_GATEWAY_SQL_DSN="postgres://..."
//	gatectl resolve u1
package cli
