package migrate

import (
	"context"
	"fmt"

	"github.com/melodium-shop/melodium/internal/catalog"
)

// All is the ordered migration registry. Guards are "create if not
// exists" style where the statement supports it, but the ledger is what
// guarantees at-most-once execution.
var All = []Migration{
	{
		ID:   1,
		Name: "create_persons",
		Up: func(ctx context.Context, exec Executor) error {
			return execAll(ctx, exec, []string{
				`CREATE TABLE IF NOT EXISTS persons (
					id BIGSERIAL PRIMARY KEY,
					given_name TEXT NOT NULL,
					family_name TEXT NOT NULL,
					birth_date DATE,
					gender TEXT CHECK (gender IS NULL OR gender IN ('female', 'male', 'nonbinary', 'unspecified')),
					phone TEXT,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
				)`,
			})
		},
		Down: dropTables("persons"),
	},
	{
		ID:   2,
		Name: "create_role_subtables",
		Up: func(ctx context.Context, exec Executor) error {
			return execAll(ctx, exec, []string{
				`CREATE TABLE IF NOT EXISTS customers (
					person_id BIGINT PRIMARY KEY REFERENCES persons(id),
					username TEXT NOT NULL UNIQUE,
					password_hash TEXT NOT NULL,
					loyalty_points BIGINT NOT NULL DEFAULT 0
				)`,
				`CREATE TABLE IF NOT EXISTS employees (
					person_id BIGINT PRIMARY KEY REFERENCES persons(id),
					job_title TEXT NOT NULL,
					department TEXT,
					hired_at DATE NOT NULL DEFAULT CURRENT_DATE
				)`,
				`CREATE TABLE IF NOT EXISTS artists (
					person_id BIGINT PRIMARY KEY REFERENCES persons(id),
					stage_name TEXT NOT NULL UNIQUE,
					bio TEXT,
					website TEXT,
					debut_year INT
				)`,
			})
		},
		Down: dropTables("artists", "employees", "customers"),
	},
	{
		ID:   3,
		Name: "create_email_history",
		Up: func(ctx context.Context, exec Executor) error {
			return execAll(ctx, exec, []string{
				`CREATE TABLE IF NOT EXISTS email_history (
					id BIGSERIAL PRIMARY KEY,
					person_id BIGINT NOT NULL REFERENCES persons(id),
					email TEXT NOT NULL,
					is_verified BOOLEAN NOT NULL DEFAULT FALSE,
					effective_from TIMESTAMPTZ NOT NULL DEFAULT now(),
					effective_to TIMESTAMPTZ,
					change_reason TEXT NOT NULL CHECK (change_reason IN ('initial', 'user_updated', 'admin_updated', 'verification'))
				)`,
				`CREATE INDEX IF NOT EXISTS idx_email_history_person ON email_history (person_id)`,
			})
		},
		Down: dropTables("email_history"),
	},
	{
		ID:   4,
		Name: "create_rbac_tables",
		Up: func(ctx context.Context, exec Executor) error {
			return execAll(ctx, exec, []string{
				`CREATE TABLE IF NOT EXISTS roles (
					id BIGSERIAL PRIMARY KEY,
					name TEXT NOT NULL UNIQUE,
					description TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
				)`,
				`CREATE TABLE IF NOT EXISTS permissions (
					id BIGSERIAL PRIMARY KEY,
					name TEXT NOT NULL UNIQUE,
					resource TEXT NOT NULL,
					action TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT ''
				)`,
				`CREATE TABLE IF NOT EXISTS person_roles (
					person_id BIGINT NOT NULL REFERENCES persons(id),
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					assigned_at TIMESTAMPTZ NOT NULL DEFAULT now(),
					assigned_by BIGINT REFERENCES persons(id),
					expires_at TIMESTAMPTZ,
					PRIMARY KEY (person_id, role_id)
				)`,
				`CREATE TABLE IF NOT EXISTS role_permissions (
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					permission_id BIGINT NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
					PRIMARY KEY (role_id, permission_id)
				)`,
			})
		},
		Down: dropTables("role_permissions", "person_roles", "permissions", "roles"),
	},
	{
		ID:   5,
		Name: "create_products",
		Up: func(ctx context.Context, exec Executor) error {
			return execAll(ctx, exec, []string{
				fmt.Sprintf(`CREATE TABLE IF NOT EXISTS products (
					id BIGSERIAL PRIMARY KEY,
					title TEXT NOT NULL,
					display_artist TEXT NOT NULL,
					artist_id BIGINT REFERENCES persons(id),
					price NUMERIC(10,2) NOT NULL CHECK (price >= 0),
					image_path TEXT,
					release_year INT,
					genre TEXT CHECK %s,
					stock INT NOT NULL DEFAULT 0 CHECK (stock >= 0),
					product_type TEXT NOT NULL CHECK (product_type IN ('Album', 'Single', 'EP', 'Merch')),
					created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
				)`, catalog.GenreCheckConstraint("genre")),
				`CREATE INDEX IF NOT EXISTS idx_products_artist ON products (artist_id)`,
			})
		},
		Down: dropTables("products"),
	},
	{
		ID:   6,
		Name: "create_songs",
		Up: func(ctx context.Context, exec Executor) error {
			return execAll(ctx, exec, []string{
				fmt.Sprintf(`CREATE TABLE IF NOT EXISTS songs (
					id BIGSERIAL PRIMARY KEY,
					title TEXT NOT NULL,
					isrc TEXT UNIQUE,
					duration_seconds INT NOT NULL CHECK (duration_seconds > 0),
					bpm INT,
					is_explicit BOOLEAN NOT NULL DEFAULT FALSE,
					genre TEXT CHECK %s,
					artist_id BIGINT REFERENCES persons(id),
					audio_path TEXT,
					audio_format TEXT,
					audio_size BIGINT,
					price NUMERIC(10,2) NOT NULL CHECK (price >= 0),
					created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
				)`, catalog.GenreCheckConstraint("genre")),
				`CREATE INDEX IF NOT EXISTS idx_songs_artist ON songs (artist_id)`,
			})
		},
		Down: dropTables("songs"),
	},
	{
		ID:   7,
		Name: "create_album_songs",
		Up: func(ctx context.Context, exec Executor) error {
			return execAll(ctx, exec, []string{
				`CREATE TABLE IF NOT EXISTS album_songs (
					album_id BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
					song_id BIGINT NOT NULL REFERENCES songs(id) ON DELETE CASCADE,
					track_number INT NOT NULL CHECK (track_number > 0),
					disc_number INT NOT NULL DEFAULT 1 CHECK (disc_number > 0),
					PRIMARY KEY (album_id, song_id)
				)`,
				`CREATE INDEX IF NOT EXISTS idx_album_songs_song ON album_songs (song_id)`,
			})
		},
		Down: dropTables("album_songs"),
	},
	{
		ID:   8,
		Name: "create_cart_items",
		Up: func(ctx context.Context, exec Executor) error {
			// First shape of the cart, before the per-item uniqueness
			// invariant was enforced at the schema level (see migration 12).
			// Cart rows are transient staging, so catalog deletes sweep
			// them along.
			return execAll(ctx, exec, []string{
				`CREATE TABLE IF NOT EXISTS cart_items (
					id BIGSERIAL PRIMARY KEY,
					person_id BIGINT NOT NULL REFERENCES persons(id),
					product_id BIGINT REFERENCES products(id) ON DELETE CASCADE,
					song_id BIGINT REFERENCES songs(id) ON DELETE CASCADE,
					quantity INT,
					added_at TIMESTAMPTZ NOT NULL DEFAULT now(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
				)`,
			})
		},
		Down: dropTables("cart_items"),
	},
	{
		ID:   9,
		Name: "create_orders",
		Up: func(ctx context.Context, exec Executor) error {
			return execAll(ctx, exec, []string{
				`CREATE TABLE IF NOT EXISTS orders (
					id BIGSERIAL PRIMARY KEY,
					order_number TEXT NOT NULL UNIQUE,
					person_id BIGINT NOT NULL REFERENCES persons(id),
					status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'processing', 'paid', 'shipped', 'delivered', 'cancelled', 'refunded')),
					subtotal NUMERIC(10,2) NOT NULL,
					discount_total NUMERIC(10,2) NOT NULL DEFAULT 0,
					tax_total NUMERIC(10,2) NOT NULL,
					total NUMERIC(10,2) NOT NULL CHECK (total >= 0),
					note TEXT,
					created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
					completed_at TIMESTAMPTZ
				)`,
				`CREATE TABLE IF NOT EXISTS order_items (
					id BIGSERIAL PRIMARY KEY,
					order_id BIGINT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
					product_id BIGINT REFERENCES products(id) ON DELETE SET NULL,
					song_id BIGINT REFERENCES songs(id) ON DELETE SET NULL,
					title TEXT NOT NULL,
					quantity INT NOT NULL CHECK (quantity > 0),
					unit_price NUMERIC(10,2) NOT NULL,
					line_total NUMERIC(10,2) NOT NULL,
					CHECK (product_id IS NULL OR song_id IS NULL)
				)`,
				`CREATE INDEX IF NOT EXISTS idx_orders_person ON orders (person_id)`,
			})
		},
		Down: dropTables("order_items", "orders"),
	},
	{
		ID:   10,
		Name: "create_coupons",
		Up: func(ctx context.Context, exec Executor) error {
			return execAll(ctx, exec, []string{
				`CREATE TABLE IF NOT EXISTS coupons (
					id BIGSERIAL PRIMARY KEY,
					code TEXT NOT NULL UNIQUE,
					description TEXT NOT NULL DEFAULT '',
					discount_type TEXT NOT NULL CHECK (discount_type IN ('percentage', 'fixed')),
					discount_value NUMERIC(10,2) NOT NULL CHECK (discount_value > 0),
					min_purchase NUMERIC(10,2),
					max_discount NUMERIC(10,2),
					created_by_kind TEXT NOT NULL CHECK (created_by_kind IN ('admin', 'vendor', 'artist')),
					created_by BIGINT NOT NULL REFERENCES persons(id),
					valid_from TIMESTAMPTZ,
					valid_until TIMESTAMPTZ,
					use_count SMALLINT NOT NULL DEFAULT 0,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
				)`,
				`CREATE TABLE IF NOT EXISTS order_coupons (
					order_id BIGINT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
					coupon_id BIGINT NOT NULL REFERENCES coupons(id),
					amount_applied NUMERIC(10,2) NOT NULL,
					applied_at TIMESTAMPTZ NOT NULL DEFAULT now(),
					PRIMARY KEY (order_id, coupon_id)
				)`,
			})
		},
		Down: dropTables("order_coupons", "coupons"),
	},
	{
		ID:   11,
		Name: "unique_active_email",
		Up: func(ctx context.Context, exec Executor) error {
			// Partial unique indexes enforce the temporal invariants: one
			// open row per person, and one owner per active email value.
			return execAll(ctx, exec, []string{
				`CREATE UNIQUE INDEX IF NOT EXISTS uq_email_history_active_email ON email_history (email) WHERE effective_to IS NULL`,
				`CREATE UNIQUE INDEX IF NOT EXISTS uq_email_history_open_row ON email_history (person_id) WHERE effective_to IS NULL`,
			})
		},
		Down: func(ctx context.Context, exec Executor) error {
			return execAll(ctx, exec, []string{
				`DROP INDEX IF EXISTS uq_email_history_open_row`,
				`DROP INDEX IF EXISTS uq_email_history_active_email`,
			})
		},
	},
	{
		ID:   12,
		Name: "rebuild_cart_items_unique",
		Up: func(ctx context.Context, exec Executor) error {
			// Retrofit the at-most-one-row-per-item invariant via a shadow
			// rebuild; duplicate lines are collapsed by summing quantity.
			return ShadowRebuild(ctx, exec, RebuildPlan{
				Table: "cart_items",
				Definition: `id BIGSERIAL PRIMARY KEY,
					person_id BIGINT NOT NULL REFERENCES persons(id),
					product_id BIGINT REFERENCES products(id) ON DELETE CASCADE,
					song_id BIGINT REFERENCES songs(id) ON DELETE CASCADE,
					quantity INT NOT NULL DEFAULT 1 CHECK (quantity > 0),
					added_at TIMESTAMPTZ NOT NULL DEFAULT now(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
					CHECK ((product_id IS NULL) <> (song_id IS NULL))`,
				Select: `SELECT min(id), person_id, product_id, song_id, greatest(sum(coalesce(quantity, 1)), 1), min(added_at), max(updated_at)
					FROM cart_items
					GROUP BY person_id, product_id, song_id
					HAVING (product_id IS NULL) <> (song_id IS NULL)`,
				After: []string{
					`CREATE UNIQUE INDEX uq_cart_person_product ON cart_items (person_id, product_id) WHERE product_id IS NOT NULL`,
					`CREATE UNIQUE INDEX uq_cart_person_song ON cart_items (person_id, song_id) WHERE song_id IS NOT NULL`,
					`SELECT setval(pg_get_serial_sequence('cart_items', 'id'), coalesce(max(id), 1)) FROM cart_items`,
				},
			})
		},
		Down: func(ctx context.Context, exec Executor) error {
			return ShadowRebuild(ctx, exec, RebuildPlan{
				Table: "cart_items",
				Definition: `id BIGSERIAL PRIMARY KEY,
					person_id BIGINT NOT NULL REFERENCES persons(id),
					product_id BIGINT REFERENCES products(id) ON DELETE CASCADE,
					song_id BIGINT REFERENCES songs(id) ON DELETE CASCADE,
					quantity INT,
					added_at TIMESTAMPTZ NOT NULL DEFAULT now(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT now()`,
				Select: `SELECT id, person_id, product_id, song_id, quantity, added_at, updated_at FROM cart_items`,
				After: []string{
					`SELECT setval(pg_get_serial_sequence('cart_items', 'id'), coalesce(max(id), 1)) FROM cart_items`,
				},
			})
		},
	},
	{
		ID:   13,
		Name: "order_items_artist_attribution",
		Up: func(ctx context.Context, exec Executor) error {
			return execAll(ctx, exec, []string{
				`ALTER TABLE order_items ADD COLUMN IF NOT EXISTS artist_id BIGINT REFERENCES persons(id)`,
			})
		},
		Down: func(ctx context.Context, exec Executor) error {
			return execAll(ctx, exec, []string{
				`ALTER TABLE order_items DROP COLUMN IF EXISTS artist_id`,
			})
		},
	},
	{
		ID:   14,
		Name: "widen_coupon_use_count",
		Up: func(ctx context.Context, exec Executor) error {
			return execAll(ctx, exec, []string{
				`ALTER TABLE coupons ALTER COLUMN use_count TYPE BIGINT`,
				`ALTER TABLE coupons ADD COLUMN IF NOT EXISTS max_uses BIGINT CHECK (max_uses IS NULL OR max_uses > 0)`,
			})
		},
		Down: func(ctx context.Context, exec Executor) error {
			return execAll(ctx, exec, []string{
				`ALTER TABLE coupons DROP COLUMN IF EXISTS max_uses`,
				`ALTER TABLE coupons ALTER COLUMN use_count TYPE SMALLINT`,
			})
		},
	},
	{
		ID:   15,
		Name: "backfill_product_artists",
		Up: func(ctx context.Context, exec Executor) error {
			// Link legacy products created before identity resolution was
			// wired into product entry. Matching is by lowercased stage
			// name; rows with no match keep a NULL artist_id. Reversing
			// would erase links that may since have been hand-corrected,
			// so this migration declares no down.
			return execAll(ctx, exec, []string{
				`UPDATE products p SET artist_id = a.person_id
					FROM artists a
					WHERE p.artist_id IS NULL AND lower(p.display_artist) = lower(a.stage_name)`,
				`UPDATE songs s SET artist_id = al.artist_id
					FROM album_songs b
					JOIN products al ON al.id = b.album_id
					WHERE s.id = b.song_id AND s.artist_id IS NULL AND al.artist_id IS NOT NULL`,
			})
		},
		Down: nil,
	},
}

// dropTables builds a down body that drops tables in the given order.
func dropTables(tables ...string) func(ctx context.Context, exec Executor) error {
	return func(ctx context.Context, exec Executor) error {
		for _, t := range tables {
			if _, err := exec.Exec(ctx, "DROP TABLE IF EXISTS "+t); err != nil {
				return err
			}
		}
		return nil
	}
}
