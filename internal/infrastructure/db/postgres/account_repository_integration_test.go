//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/demopark/accounts/internal/core/domain"
	"github.com/demopark/accounts/internal/infrastructure/db/postgres"
)

var _ = Describe("AccountRepository", Ordered, func() {
	var (
		ctx       context.Context
		container *tcpostgres.PostgresContainer
		repo      *postgres.AccountRepository
	)

	BeforeAll(func() {
		ctx = context.Background()

		var err error
		container, err = tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("accounts_test"),
			tcpostgres.WithUsername("accounts"),
			tcpostgres.WithPassword("accounts"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second),
			),
		)
		Expect(err).NotTo(HaveOccurred())

		connStr, err := container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())

		migrator, err := postgres.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		Expect(migrator.Up()).To(Succeed())
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(1)))
		Expect(dirty).To(BeFalse())
		Expect(migrator.Close()).To(Succeed())

		pool, err := postgres.Connect(ctx, postgres.Config{URL: connStr, MaxConns: 4})
		Expect(err).NotTo(HaveOccurred())
		repo = postgres.NewAccountRepository(pool)
	})

	AfterAll(func() {
		if repo != nil {
			_ = repo.Close(ctx)
		}
		if container != nil {
			_ = container.Terminate(ctx)
		}
	})

	newAccount := func(username string, role domain.Role) *domain.Account {
		now := time.Now().UTC().Truncate(time.Millisecond)
		return &domain.Account{
			Username:     username,
			PasswordHash: "$2a$10$placeholder",
			Role:         role,
			CreatedAt:    now,
			ModifiedAt:   now,
			CreatedBy:    username,
			ModifiedBy:   username,
		}
	}

	It("assigns increasing ids and reads accounts back", func() {
		first, err := repo.Insert(ctx, newAccount("first@example.com", domain.RoleClient))
		Expect(err).NotTo(HaveOccurred())
		second, err := repo.Insert(ctx, newAccount("second@example.com", domain.RoleAdmin))
		Expect(err).NotTo(HaveOccurred())
		Expect(second.ID).To(BeNumerically(">", first.ID))

		got, err := repo.FindByUsername(ctx, "second@example.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal(second.ID))
		Expect(got.Role).To(Equal(domain.RoleAdmin))

		role, err := repo.FindRoleByUsername(ctx, "first@example.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(role).To(Equal(domain.RoleClient))
	})

	It("rejects duplicate usernames with a typed error", func() {
		_, err := repo.Insert(ctx, newAccount("dup@example.com", domain.RoleClient))
		Expect(err).NotTo(HaveOccurred())

		_, err = repo.Insert(ctx, newAccount("dup@example.com", domain.RoleClient))
		var uv *domain.UniqueViolationError
		Expect(errors.As(err, &uv)).To(BeTrue())
		Expect(uv.Field).To(Equal("username"))
	})

	It("reports missing accounts", func() {
		_, err := repo.FindByID(ctx, 987654)
		Expect(err).To(MatchError(domain.ErrAccountNotFound))
	})

	It("lists accounts in id order", func() {
		accounts, err := repo.ListAll(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(len(accounts)).To(BeNumerically(">=", 3))
		for i := 1; i < len(accounts); i++ {
			Expect(accounts[i].ID).To(BeNumerically(">", accounts[i-1].ID))
		}
	})

	It("serializes concurrent UpdateWith calls on one account", func() {
		created, err := repo.Insert(ctx, newAccount("counter@example.com", domain.RoleClient))
		Expect(err).NotTo(HaveOccurred())

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				_, err := repo.UpdateWith(ctx, created.ID, func(a *domain.Account) error {
					a.PasswordHash += "x"
					return nil
				})
				Expect(err).NotTo(HaveOccurred())
			}()
		}
		wg.Wait()

		got, err := repo.FindByID(ctx, created.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.PasswordHash).To(Equal("$2a$10$placeholder" + "xxxxxxxx"))
	})
})
