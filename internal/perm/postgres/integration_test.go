// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glyph Contributors

//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	pgcontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/syameer-io/glyph/internal/perm"
	"github.com/syameer-io/glyph/internal/perm/postgres"
	"github.com/syameer-io/glyph/internal/store"
)

func TestPermStores(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Permission Store Integration Suite")
}

var (
	pool      *pgxpool.Pool
	connStr   string
	container *pgcontainer.PostgresContainer
	roles     *postgres.RoleRepository
	overrides *postgres.OverrideRepository
	directory *postgres.DirectoryRepository
)

var _ = BeforeSuite(func() {
	ctx := context.Background()

	var err error
	container, err = pgcontainer.Run(ctx,
		"postgres:18-alpine",
		pgcontainer.WithDatabase("glyph_test"),
		pgcontainer.WithUsername("glyph"),
		pgcontainer.WithPassword("glyph"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	Expect(err).NotTo(HaveOccurred())

	connStr, err = container.ConnectionString(ctx, "sslmode=disable")
	Expect(err).NotTo(HaveOccurred())

	migrator, err := store.NewMigrator(connStr)
	Expect(err).NotTo(HaveOccurred())
	Expect(migrator.Up()).To(Succeed())
	_ = migrator.Close()

	pool, err = pgxpool.New(ctx, connStr)
	Expect(err).NotTo(HaveOccurred())

	roles = postgres.NewRoleRepository(pool)
	overrides = postgres.NewOverrideRepository(pool)
	directory = postgres.NewDirectoryRepository(pool)
})

var _ = AfterSuite(func() {
	if pool != nil {
		pool.Close()
	}
	if container != nil {
		_ = container.Terminate(context.Background())
	}
})

func cleanup(ctx context.Context) {
	for _, table := range []string{
		"channel_overrides", "role_assignments", "roles",
		"channels", "server_members", "servers",
	} {
		_, _ = pool.Exec(ctx, "DELETE FROM "+table)
	}
}

func seedServer(ctx context.Context, serverID, creatorID string) {
	_, err := pool.Exec(ctx,
		`INSERT INTO servers (id, name, creator_id) VALUES ($1, $2, $3)`,
		serverID, "server "+serverID, creatorID)
	Expect(err).NotTo(HaveOccurred())
}

func seedChannel(ctx context.Context, channelID, serverID string) {
	_, err := pool.Exec(ctx,
		`INSERT INTO channels (id, server_id, name) VALUES ($1, $2, $3)`,
		channelID, serverID, "channel "+channelID)
	Expect(err).NotTo(HaveOccurred())
}

func seedMember(ctx context.Context, serverID, userID string) {
	_, err := pool.Exec(ctx,
		`INSERT INTO server_members (server_id, user_id) VALUES ($1, $2)`,
		serverID, userID)
	Expect(err).NotTo(HaveOccurred())
}

func newRole(serverID, name string, position int, perms ...string) *perm.Role {
	now := time.Now().UTC()
	return &perm.Role{
		ID:          ulid.Make().String(),
		ServerID:    serverID,
		Name:        name,
		Color:       "#5865f2",
		Position:    position,
		Permissions: perms,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

var _ = Describe("RoleRepository", func() {
	ctx := context.Background()

	BeforeEach(func() {
		cleanup(ctx)
		seedServer(ctx, "srv1", "creator")
	})

	It("round-trips a role", func() {
		role := newRole("srv1", "Moderator", 10, "kick_member", "ban_member")
		Expect(roles.Create(ctx, role)).To(Succeed())

		got, err := roles.Get(ctx, role.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Name).To(Equal("Moderator"))
		Expect(got.Position).To(Equal(10))
		Expect(got.Permissions).To(Equal([]string{"kick_member", "ban_member"}))

		byName, err := roles.GetByName(ctx, "srv1", "Moderator")
		Expect(err).NotTo(HaveOccurred())
		Expect(byName.ID).To(Equal(role.ID))
	})

	It("rejects duplicate names within a server", func() {
		Expect(roles.Create(ctx, newRole("srv1", "Moderator", 10))).To(Succeed())
		err := roles.Create(ctx, newRole("srv1", "Moderator", 20))
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("ROLE_ALREADY_EXISTS"))
	})

	It("allows the same name on different servers", func() {
		seedServer(ctx, "srv2", "creator")
		Expect(roles.Create(ctx, newRole("srv1", "Moderator", 10))).To(Succeed())
		Expect(roles.Create(ctx, newRole("srv2", "Moderator", 10))).To(Succeed())
	})

	It("returns ROLE_NOT_FOUND for a missing update target", func() {
		role := newRole("srv1", "Ghost", 1)
		err := roles.Update(ctx, role)
		Expect(err).To(HaveOccurred())
		Expect(perm.IsNotFound(err)).To(BeTrue())
	})

	It("cascades assignments and overrides on delete", func() {
		role := newRole("srv1", "Moderator", 10, "kick_member")
		Expect(roles.Create(ctx, role)).To(Succeed())
		Expect(roles.Assign(ctx, "user1", role.ID, "srv1")).To(Succeed())
		seedChannel(ctx, "chan1", "srv1")
		o := &perm.Override{
			ID: ulid.Make().String(), ChannelID: "chan1", RoleID: role.ID,
			Permission: "kick_member", Value: perm.OverrideDeny,
			CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
		}
		Expect(overrides.Upsert(ctx, o)).To(Succeed())

		Expect(roles.Delete(ctx, role.ID)).To(Succeed())

		holders, err := roles.Holders(ctx, role.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(holders).To(BeEmpty())

		remaining, err := overrides.ForChannel(ctx, "chan1")
		Expect(err).NotTo(HaveOccurred())
		Expect(remaining).To(BeEmpty())
	})

	It("treats re-assignment as a no-op", func() {
		role := newRole("srv1", "Moderator", 10)
		Expect(roles.Create(ctx, role)).To(Succeed())
		Expect(roles.Assign(ctx, "user1", role.ID, "srv1")).To(Succeed())
		Expect(roles.Assign(ctx, "user1", role.ID, "srv1")).To(Succeed())

		count, err := roles.CountHolders(ctx, role.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(1))
	})

	It("lists a user's roles highest position first", func() {
		mod := newRole("srv1", "Moderator", 10)
		admin := newRole("srv1", "Server Admin", 100, "administrator")
		Expect(roles.Create(ctx, mod)).To(Succeed())
		Expect(roles.Create(ctx, admin)).To(Succeed())
		Expect(roles.Assign(ctx, "user1", mod.ID, "srv1")).To(Succeed())
		Expect(roles.Assign(ctx, "user1", admin.ID, "srv1")).To(Succeed())

		got, err := roles.RolesForUser(ctx, "user1", "srv1")
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(2))
		Expect(got[0].Name).To(Equal("Server Admin"))
		Expect(got[1].Name).To(Equal("Moderator"))
	})
})

var _ = Describe("OverrideRepository", func() {
	ctx := context.Background()
	var role *perm.Role

	BeforeEach(func() {
		cleanup(ctx)
		seedServer(ctx, "srv1", "creator")
		seedChannel(ctx, "chan1", "srv1")
		role = newRole("srv1", "Moderator", 10, "send_message")
		Expect(roles.Create(ctx, role)).To(Succeed())
	})

	It("upserts by (channel, role, permission) triple", func() {
		now := time.Now().UTC()
		o := &perm.Override{
			ID: ulid.Make().String(), ChannelID: "chan1", RoleID: role.ID,
			Permission: "send_message", Value: perm.OverrideDeny,
			CreatedAt: now, UpdatedAt: now,
		}
		Expect(overrides.Upsert(ctx, o)).To(Succeed())

		o2 := &perm.Override{
			ID: ulid.Make().String(), ChannelID: "chan1", RoleID: role.ID,
			Permission: "send_message", Value: perm.OverrideAllow,
			CreatedAt: now, UpdatedAt: now,
		}
		Expect(overrides.Upsert(ctx, o2)).To(Succeed())

		got, err := overrides.ForRoleChannel(ctx, role.ID, "chan1")
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(1))
		Expect(got[0].Value).To(Equal(perm.OverrideAllow))
	})

	It("returns OVERRIDE_NOT_FOUND when removing a missing override", func() {
		err := overrides.Remove(ctx, "chan1", role.ID, "send_message")
		Expect(err).To(HaveOccurred())
		Expect(perm.IsNotFound(err)).To(BeTrue())
	})
})

var _ = Describe("DirectoryRepository", func() {
	ctx := context.Background()

	BeforeEach(func() {
		cleanup(ctx)
		seedServer(ctx, "srv1", "creator")
	})

	It("counts only members without any role", func() {
		seedMember(ctx, "srv1", "user1")
		seedMember(ctx, "srv1", "user2")
		seedMember(ctx, "srv1", "user3")

		role := newRole("srv1", "Moderator", 10)
		Expect(roles.Create(ctx, role)).To(Succeed())
		Expect(roles.Assign(ctx, "user1", role.ID, "srv1")).To(Succeed())

		count, err := directory.CountImplicitMembers(ctx, "srv1")
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(2))
	})

	It("lists channel IDs for a server", func() {
		seedChannel(ctx, "chan1", "srv1")
		seedChannel(ctx, "chan2", "srv1")

		channels, err := directory.Channels(ctx, "srv1")
		Expect(err).NotTo(HaveOccurred())
		Expect(channels).To(Equal([]string{"chan1", "chan2"}))
	})
})

var _ = Describe("invalidation fanout", func() {
	ctx := context.Background()

	BeforeEach(func() {
		cleanup(ctx)
		seedServer(ctx, "srv1", "creator")
	})

	It("notifies the server ID on every mutation", func() {
		conn, err := pool.Acquire(ctx)
		Expect(err).NotTo(HaveOccurred())
		defer conn.Release()

		_, err = conn.Exec(ctx, "LISTEN "+postgres.NotifyChannel)
		Expect(err).NotTo(HaveOccurred())

		Expect(roles.Create(ctx, newRole("srv1", "Moderator", 10))).To(Succeed())

		notifyCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		notification, err := conn.Conn().WaitForNotification(notifyCtx)
		Expect(err).NotTo(HaveOccurred())
		Expect(notification.Channel).To(Equal(postgres.NotifyChannel))
		Expect(notification.Payload).To(Equal("srv1"))
	})

	It("drops a peer's cached entries for the mutated server", func() {
		cache := perm.NewMemoryCache()
		Expect(cache.Set(ctx, perm.ServerKey("srv1", "user1"), []string{"send_message"}, time.Minute)).To(Succeed())
		Expect(cache.Set(ctx, perm.ServerKey("srv2", "user1"), []string{"send_message"}, time.Minute)).To(Succeed())

		listenerCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		listener := postgres.NewListener(connStr, cache)
		listener.Start(listenerCtx)
		defer listener.Wait()

		// Give the listener time to issue LISTEN before mutating.
		time.Sleep(500 * time.Millisecond)

		Expect(roles.Create(ctx, newRole("srv1", "Moderator", 10))).To(Succeed())

		Eventually(func() bool {
			_, ok, err := cache.Get(ctx, perm.ServerKey("srv1", "user1"))
			return err == nil && !ok
		}, 5*time.Second, 100*time.Millisecond).Should(BeTrue())

		_, ok, err := cache.Get(ctx, perm.ServerKey("srv2", "user1"))
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue(), "other servers' entries must survive")
	})
})
