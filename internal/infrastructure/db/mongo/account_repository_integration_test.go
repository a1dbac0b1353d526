//go:build integration

package mongo_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	tcmongo "github.com/testcontainers/testcontainers-go/modules/mongodb"

	"github.com/demopark/accounts/internal/core/domain"
	mongostore "github.com/demopark/accounts/internal/infrastructure/db/mongo"
)

var _ = Describe("AccountRepository", Ordered, func() {
	var (
		ctx       context.Context
		container *tcmongo.MongoDBContainer
		repo      *mongostore.AccountRepository
	)

	BeforeAll(func() {
		ctx = context.Background()

		var err error
		container, err = tcmongo.Run(ctx, "mongo:7")
		Expect(err).NotTo(HaveOccurred())

		uri, err := container.ConnectionString(ctx)
		Expect(err).NotTo(HaveOccurred())

		client, db, err := mongostore.Connect(ctx, mongostore.Config{
			URI:      uri,
			Database: "accounts_test",
			Timeout:  30 * time.Second,
		})
		Expect(err).NotTo(HaveOccurred())

		repo = mongostore.NewAccountRepository(client, db)
		Expect(repo.EnsureIndexes(ctx)).To(Succeed())
		// a second call finds the index already in place
		Expect(repo.EnsureIndexes(ctx)).To(Succeed())
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

	It("draws sequential ids from the counter and reads accounts back", func() {
		first, err := repo.Insert(ctx, newAccount("first@example.com", domain.RoleClient))
		Expect(err).NotTo(HaveOccurred())
		Expect(first.ID).To(Equal(int64(1)))
		second, err := repo.Insert(ctx, newAccount("second@example.com", domain.RoleAdmin))
		Expect(err).NotTo(HaveOccurred())
		Expect(second.ID).To(Equal(first.ID + 1))

		got, err := repo.FindByUsername(ctx, "second@example.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal(second.ID))
		Expect(got.Role).To(Equal(domain.RoleAdmin))
		Expect(got.CreatedAt).To(BeTemporally("==", second.CreatedAt))

		byID, err := repo.FindByID(ctx, first.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(byID.Username).To(Equal("first@example.com"))

		role, err := repo.FindRoleByUsername(ctx, "first@example.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(role).To(Equal(domain.RoleClient))
	})

	It("rejects duplicate usernames with a typed error", func() {
		_, err := repo.Insert(ctx, newAccount("dup@example.com", domain.RoleClient))
		Expect(err).NotTo(HaveOccurred())

		_, err = repo.Insert(ctx, newAccount("dup@example.com", domain.RoleAdmin))
		var uv *domain.UniqueViolationError
		Expect(errors.As(err, &uv)).To(BeTrue())
		Expect(uv.Field).To(Equal("username"))

		role, err := repo.FindRoleByUsername(ctx, "dup@example.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(role).To(Equal(domain.RoleClient))
	})

	It("reports missing accounts", func() {
		_, err := repo.FindByID(ctx, 987654)
		Expect(err).To(MatchError(domain.ErrAccountNotFound))

		_, err = repo.FindByUsername(ctx, "ghost@example.com")
		Expect(err).To(MatchError(domain.ErrAccountNotFound))

		_, err = repo.FindRoleByUsername(ctx, "ghost@example.com")
		Expect(err).To(MatchError(domain.ErrAccountNotFound))

		_, err = repo.UpdateWith(ctx, 987654, func(*domain.Account) error { return nil })
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

	It("writes nothing when the update function fails", func() {
		created, err := repo.Insert(ctx, newAccount("rollback@example.com", domain.RoleClient))
		Expect(err).NotTo(HaveOccurred())

		_, err = repo.UpdateWith(ctx, created.ID, func(a *domain.Account) error {
			a.Role = domain.RoleAdmin
			return domain.ErrWrongPassword
		})
		Expect(err).To(MatchError(domain.ErrWrongPassword))

		got, err := repo.FindByID(ctx, created.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Role).To(Equal(domain.RoleClient))
	})

	It("applies an update and returns the new state", func() {
		created, err := repo.Insert(ctx, newAccount("promote@example.com", domain.RoleClient))
		Expect(err).NotTo(HaveOccurred())

		updated, err := repo.UpdateWith(ctx, created.ID, func(a *domain.Account) error {
			a.Role = domain.RoleAdmin
			a.ModifiedBy = "root@example.com"
			return nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(updated.Role).To(Equal(domain.RoleAdmin))

		role, err := repo.FindRoleByUsername(ctx, "promote@example.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(role).To(Equal(domain.RoleAdmin))
	})

	It("retries lost compare-and-swap races so no update is dropped", func() {
		created, err := repo.Insert(ctx, newAccount("counter@example.com", domain.RoleClient))
		Expect(err).NotTo(HaveOccurred())

		// each writer can lose at most writers-1 races, within the retry budget
		const writers = 4
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
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
		Expect(got.PasswordHash).To(Equal("$2a$10$placeholder" + "xxxx"))
	})

	It("answers pings", func() {
		Expect(repo.Ping(ctx)).To(Succeed())
	})
})
