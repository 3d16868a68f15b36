// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Resetgate Contributors

package reset_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/resetgate/resetgate/internal/directory"
	"github.com/resetgate/resetgate/internal/flow"
	"github.com/resetgate/resetgate/internal/token"
)

var _ = Describe("Password reset end to end", func() {
	var (
		ctx    context.Context
		dir    *fakeDirectory
		issuer *token.Issuer
		mb     *mailbox
	)

	BeforeEach(func() {
		ctx = context.Background()
		dir = newFakeDirectory()
		issuer = token.NewIssuer()
		mb = newMailbox()

		dir.identities["alice"] = directory.Identity{
			DN:            "CN=Alice,DC=example,DC=com",
			PrincipalName: "alice@example.com",
			Name:          "Alice",
			Mail:          "alice@example.com",
		}
		dir.identities["mailless"] = directory.Identity{
			DN:            "CN=Mailless,DC=example,DC=com",
			PrincipalName: "mailless@example.com",
			Name:          "Mailless",
		}
	})

	It("walks a user through request, verify, and change", func() {
		session := newSession(dir, issuer, mb)

		outcome := session.RequestToken(ctx, "alice", true)
		Expect(outcome.OK).To(BeTrue())
		Expect(outcome.Message).To(Equal("Check your e-mail."))
		Expect(outcome.Stage).To(Equal(flow.StageUseToken))

		delivered := mb.byRecipient["alice@example.com"]
		Expect(delivered).To(HaveLen(1))

		outcome = session.SubmitToken(delivered[0])
		Expect(outcome.OK).To(BeTrue())
		Expect(outcome.Stage).To(Equal(flow.StageSetPassword))

		outcome = session.SetPassword(ctx, "S3cret!pass", "S3cret!pass")
		Expect(outcome.OK).To(BeTrue())
		Expect(outcome.Stage).To(Equal(flow.StageRequestToken))
		Expect(dir.passwords).To(HaveKeyWithValue("CN=Alice,DC=example,DC=com", "S3cret!pass"))
	})

	It("rejects a consumed token replayed from a fresh session", func() {
		first := newSession(dir, issuer, mb)
		Expect(first.RequestToken(ctx, "alice", true).OK).To(BeTrue())
		delivered := mb.byRecipient["alice@example.com"][0]
		Expect(first.SubmitToken(delivered).OK).To(BeTrue())
		Expect(first.SetPassword(ctx, "S3cret!pass", "S3cret!pass").OK).To(BeTrue())

		second := newSession(dir, issuer, mb)
		outcome := second.RequestToken(ctx, "alice", true)
		Expect(outcome.OK).To(BeTrue())

		replay := second.SubmitToken(delivered)
		Expect(replay.OK).To(BeFalse())
		Expect(replay.Kind).To(Equal(flow.KindTokenInvalid))
		Expect(replay.Stage).To(Equal(flow.StageUseToken))
	})

	It("invalidates an earlier token when a new one is requested", func() {
		session := newSession(dir, issuer, mb)
		Expect(session.RequestToken(ctx, "alice", true).OK).To(BeTrue())
		Expect(session.Back().OK).To(BeTrue())
		Expect(session.RequestToken(ctx, "alice", true).OK).To(BeTrue())

		delivered := mb.byRecipient["alice@example.com"]
		Expect(delivered).To(HaveLen(2))

		stale := session.SubmitToken(delivered[0])
		Expect(stale.OK).To(BeFalse())
		Expect(stale.Kind).To(Equal(flow.KindTokenInvalid))

		fresh := session.SubmitToken(delivered[1])
		Expect(fresh.OK).To(BeTrue())
	})

	It("keeps ineligible users at the request stage", func() {
		session := newSession(dir, issuer, mb)

		outcome := session.RequestToken(ctx, "mailless", true)
		Expect(outcome.OK).To(BeFalse())
		Expect(outcome.Kind).To(Equal(flow.KindSenderIneligible))
		Expect(outcome.Message).To(Equal("Your user has no e-mail address."))
		Expect(outcome.Stage).To(Equal(flow.StageRequestToken))
		Expect(mb.byRecipient).To(BeEmpty())
	})

	It("answers unknown users and directory outages identically", func() {
		unknownSession := newSession(dir, issuer, mb)
		unknown := unknownSession.RequestToken(ctx, "nobody", true)

		dir.unavail = true
		outageSession := newSession(dir, issuer, mb)
		outage := outageSession.RequestToken(ctx, "alice", true)

		Expect(unknown.OK).To(BeFalse())
		Expect(outage.OK).To(BeFalse())
		Expect(unknown.Kind).To(Equal(outage.Kind))
		Expect(unknown.Message).To(Equal(outage.Message))
		Expect(unknown.Stage).To(Equal(outage.Stage))
	})

	It("rejects a token once its lifetime has passed", func() {
		session := newSession(dir, issuer, mb)
		identity := dir.identities["alice"]
		issued, err := issuer.Issue(identity, time.Millisecond)
		Expect(err).NotTo(HaveOccurred())

		Eventually(func() *token.Token {
			return issuer.Validate(issued.Value)
		}).WithTimeout(time.Second).WithPolling(5 * time.Millisecond).Should(BeNil())

		Expect(session.RequestToken(ctx, "alice", true).OK).To(BeTrue())
		replay := session.SubmitToken(issued.Value)
		Expect(replay.OK).To(BeFalse())
		Expect(replay.Kind).To(Equal(flow.KindTokenInvalid))
	})
})
