package accounts

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/tenantgate/internal/database/models"
	"github.com/hugh/tenantgate/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	user := testutil.CreateTestUser(t, f.db, true)
	token := f.signIn(t, user)

	res := f.svc.CreateOrganization(ctx, token, CreateOrganizationInput{Name: "Acme Inc"})
	require.True(t, res.Success, res.Message)
	acme := res.Data.(*OrganizationData)
	assert.Equal(t, "acme-inc", acme.Slug)
	assert.Equal(t, "owner", acme.Role)
	assert.True(t, acme.Active)

	member, err := f.store.GetMember(ctx, user.ID, acme.ID)
	require.NoError(t, err)
	assert.Equal(t, "owner", member.Role)

	res = f.svc.GetSession(ctx, token)
	require.True(t, res.Success)
	active := res.Data.(*SessionData).ActiveOrganization
	require.NotNil(t, active)
	assert.Equal(t, acme.ID, active.ID)

	// A second organization does not steal the active slot.
	res = f.svc.CreateOrganization(ctx, token, CreateOrganizationInput{Name: "Second", Slug: "second"})
	require.True(t, res.Success, res.Message)
	assert.False(t, res.Data.(*OrganizationData).Active)

	res = f.svc.ListOrganizations(ctx, token)
	require.True(t, res.Success)
	orgs := res.Data.([]*OrganizationData)
	require.Len(t, orgs, 2)
	assert.Equal(t, acme.ID, orgs[0].ID)
	assert.True(t, orgs[0].Active)
	assert.False(t, orgs[1].Active)
}

func TestCreateOrganization_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	user := testutil.CreateTestUser(t, f.db, true)
	token := f.signIn(t, user)

	require.True(t, f.svc.CreateOrganization(ctx, token, CreateOrganizationInput{Name: "Taken", Slug: "taken"}).Success)

	tests := []struct {
		name string
		in   CreateOrganizationInput
		code string
	}{
		{"duplicate slug", CreateOrganizationInput{Name: "Other", Slug: "taken"}, "duplicate_slug"},
		{"short name", CreateOrganizationInput{Name: "A"}, "validation_error"},
		{"long name", CreateOrganizationInput{Name: strings.Repeat("a", 51)}, "validation_error"},
		{"bad slug", CreateOrganizationInput{Name: "Fine", Slug: "Bad Slug!"}, "validation_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.svc.CreateOrganization(ctx, token, tt.in)
			assert.False(t, res.Success)
			assert.Equal(t, tt.code, res.Code)
		})
	}

	assert.Equal(t, "unauthenticated", f.svc.CreateOrganization(ctx, "", CreateOrganizationInput{Name: "Nope"}).Code)
}

func TestCreateOrganization_RequiresVerifiedEmail(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)

	res := f.svc.SignUp(ctx, SignUpInput{Email: "fresh@example.com", Password: "correct-horse", Name: "Fresh"})
	require.True(t, res.Success)
	token := f.opaque(t, res.Data.(*SessionData).Token)

	res = f.svc.CreateOrganization(ctx, token, CreateOrganizationInput{Name: "Early"})
	assert.Equal(t, "email_not_verified", res.Code)
}

func TestSwitchActiveOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	user := testutil.CreateTestUser(t, f.db, true)
	a := testutil.CreateTestOrg(t, f.db)
	b := testutil.CreateTestOrg(t, f.db)
	outsider := testutil.CreateTestOrg(t, f.db)
	testutil.CreateTestMember(t, f.db, user, a, "member")
	testutil.CreateTestMember(t, f.db, user, b, "member")
	token := f.signIn(t, user)

	res := f.svc.SwitchActiveOrganization(ctx, token, b.ID.String())
	require.True(t, res.Success, res.Message)
	assert.Equal(t, b.ID, res.Data.(*SessionData).ActiveOrganization.ID)

	res = f.svc.SwitchActiveOrganization(ctx, token, outsider.ID.String())
	assert.Equal(t, "not_a_member", res.Code)

	res = f.svc.GetSession(ctx, token)
	assert.Equal(t, b.ID, res.Data.(*SessionData).ActiveOrganization.ID)

	assert.Equal(t, "validation_error", f.svc.SwitchActiveOrganization(ctx, token, "not-a-uuid").Code)
	assert.Equal(t, "unauthenticated", f.svc.SwitchActiveOrganization(ctx, "", a.ID.String()).Code)
}

func TestDeleteOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	owner := testutil.CreateTestUser(t, f.db, true)
	member := testutil.CreateTestUser(t, f.db, true)
	a := testutil.CreateTestOrg(t, f.db)
	b := testutil.CreateTestOrg(t, f.db)
	testutil.CreateTestMember(t, f.db, owner, a, "owner")
	testutil.CreateTestMember(t, f.db, owner, b, "owner")
	testutil.CreateTestMember(t, f.db, member, a, "member")

	ownerToken := f.signIn(t, owner)
	memberToken := f.signIn(t, member)

	res := f.svc.DeleteOrganization(ctx, memberToken, a.ID.String())
	assert.Equal(t, "forbidden", res.Code)

	res = f.svc.DeleteOrganization(ctx, ownerToken, a.ID.String())
	require.True(t, res.Success, res.Message)
	active := res.Data.(*SessionData).ActiveOrganization
	require.NotNil(t, active)
	assert.Equal(t, b.ID, active.ID)

	// Other sessions lose the deleted organization.
	stored, err := f.store.GetSessionByToken(ctx, memberToken)
	require.NoError(t, err)
	assert.Nil(t, stored.ActiveOrganizationID)

	res = f.svc.DeleteOrganization(ctx, ownerToken, a.ID.String())
	assert.Equal(t, "not_a_member", res.Code)
}

func TestRemoveMember(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	owner := testutil.CreateTestUser(t, f.db, true)
	admin := testutil.CreateTestUser(t, f.db, true)
	member := testutil.CreateTestUser(t, f.db, true)
	other := testutil.CreateTestUser(t, f.db, true)
	outsider := testutil.CreateTestUser(t, f.db, true)
	org := testutil.CreateTestOrg(t, f.db)
	testutil.CreateTestMember(t, f.db, owner, org, "owner")
	testutil.CreateTestMember(t, f.db, admin, org, "admin")
	testutil.CreateTestMember(t, f.db, member, org, "member")
	testutil.CreateTestMember(t, f.db, other, org, "member")

	ownerToken := f.signIn(t, owner)
	adminToken := f.signIn(t, admin)
	memberToken := f.signIn(t, member)
	orgID := org.ID.String()

	assert.Equal(t, "last_owner", f.svc.RemoveMember(ctx, ownerToken, orgID, owner.ID.String()).Code)
	assert.Equal(t, "forbidden", f.svc.RemoveMember(ctx, adminToken, orgID, owner.ID.String()).Code)
	assert.Equal(t, "forbidden", f.svc.RemoveMember(ctx, memberToken, orgID, other.ID.String()).Code)
	assert.Equal(t, "not_found", f.svc.RemoveMember(ctx, adminToken, orgID, outsider.ID.String()).Code)

	res := f.svc.RemoveMember(ctx, adminToken, orgID, other.ID.String())
	require.True(t, res.Success, res.Message)
	_, err := f.store.GetMember(ctx, other.ID, org.ID)
	assert.Error(t, err)

	// Leaving re-resolves the leaver's session.
	res = f.svc.RemoveMember(ctx, memberToken, orgID, member.ID.String())
	require.True(t, res.Success, res.Message)
	assert.Nil(t, res.Data.(*SessionData).ActiveOrganization)

	// With a second owner the first may leave.
	testutil.CreateTestMember(t, f.db, outsider, org, "owner")
	res = f.svc.RemoveMember(ctx, ownerToken, orgID, owner.ID.String())
	assert.True(t, res.Success, res.Message)
}

func TestRemoveMember_CorrectsRemovedUsersSessions(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	owner := testutil.CreateTestUser(t, f.db, true)
	member := testutil.CreateTestUser(t, f.db, true)
	removed := testutil.CreateTestOrg(t, f.db)
	kept := testutil.CreateTestOrg(t, f.db)
	testutil.CreateTestMember(t, f.db, owner, removed, "owner")
	testutil.CreateTestMember(t, f.db, member, removed, "member")

	ownerToken := f.signIn(t, owner)
	memberToken := f.signIn(t, member)
	res := f.svc.GetSession(ctx, memberToken)
	require.True(t, res.Success)
	require.NotNil(t, res.Data.(*SessionData).ActiveOrganization)
	assert.Equal(t, removed.ID, res.Data.(*SessionData).ActiveOrganization.ID)

	res = f.svc.RemoveMember(ctx, ownerToken, removed.ID.String(), member.ID.String())
	require.True(t, res.Success, res.Message)

	res = f.svc.GetSession(ctx, memberToken)
	require.True(t, res.Success)
	assert.Nil(t, res.Data.(*SessionData).ActiveOrganization)
	assert.Equal(t, "not_a_member", f.svc.ListMembers(ctx, memberToken, removed.ID.String()).Code)

	// A remaining membership takes over.
	second := f.signIn(t, member)
	testutil.CreateTestMember(t, f.db, member, kept, "member")
	testutil.CreateTestMember(t, f.db, member, removed, "member")
	require.True(t, f.svc.SwitchActiveOrganization(ctx, second, removed.ID.String()).Success)
	require.True(t, f.svc.RemoveMember(ctx, ownerToken, removed.ID.String(), member.ID.String()).Success)

	res = f.svc.GetSession(ctx, second)
	require.True(t, res.Success)
	require.NotNil(t, res.Data.(*SessionData).ActiveOrganization)
	assert.Equal(t, kept.ID, res.Data.(*SessionData).ActiveOrganization.ID)
}

func TestListMembers(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	owner := testutil.CreateTestUser(t, f.db, true)
	member := testutil.CreateTestUser(t, f.db, true)
	outsider := testutil.CreateTestUser(t, f.db, true)
	org := testutil.CreateTestOrg(t, f.db)
	testutil.CreateTestMember(t, f.db, owner, org, "owner")
	testutil.CreateTestMember(t, f.db, member, org, "member")

	res := f.svc.ListMembers(ctx, f.signIn(t, member), org.ID.String())
	require.True(t, res.Success, res.Message)
	members := res.Data.([]*MemberData)
	require.Len(t, members, 2)

	roles := map[string]string{}
	for _, m := range members {
		roles[m.Email] = m.Role
	}
	assert.Equal(t, map[string]string{owner.Email: "owner", member.Email: "member"}, roles)

	assert.Equal(t, "not_a_member", f.svc.ListMembers(ctx, f.signIn(t, outsider), org.ID.String()).Code)
	assert.Equal(t, "validation_error", f.svc.ListMembers(ctx, f.signIn(t, owner), "nope").Code)
}

func TestUpdateMemberRole(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	owner := testutil.CreateTestUser(t, f.db, true)
	admin := testutil.CreateTestUser(t, f.db, true)
	member := testutil.CreateTestUser(t, f.db, true)
	outsider := testutil.CreateTestUser(t, f.db, true)
	org := testutil.CreateTestOrg(t, f.db)
	testutil.CreateTestMember(t, f.db, owner, org, "owner")
	testutil.CreateTestMember(t, f.db, admin, org, "admin")
	testutil.CreateTestMember(t, f.db, member, org, "member")

	ownerToken := f.signIn(t, owner)
	orgID := org.ID.String()

	assert.Equal(t, "forbidden", f.svc.UpdateMemberRole(ctx, f.signIn(t, admin), orgID, member.ID.String(), "admin").Code)
	assert.Equal(t, "not_found", f.svc.UpdateMemberRole(ctx, ownerToken, orgID, outsider.ID.String(), "admin").Code)
	assert.Equal(t, "validation_error", f.svc.UpdateMemberRole(ctx, ownerToken, orgID, member.ID.String(), "root").Code)
	assert.Equal(t, "validation_error", f.svc.UpdateMemberRole(ctx, ownerToken, orgID, member.ID.String(), "").Code)
	assert.Equal(t, "last_owner", f.svc.UpdateMemberRole(ctx, ownerToken, orgID, owner.ID.String(), "admin").Code)

	res := f.svc.UpdateMemberRole(ctx, ownerToken, orgID, member.ID.String(), "owner")
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "owner", res.Data.(*MemberData).Role)

	// With a second owner the first may step down.
	res = f.svc.UpdateMemberRole(ctx, ownerToken, orgID, owner.ID.String(), "admin")
	require.True(t, res.Success, res.Message)

	got, err := f.store.GetMember(ctx, owner.ID, org.ID)
	require.NoError(t, err)
	assert.Equal(t, "admin", got.Role)
}

func TestInvitations_AcceptFlow(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	owner := testutil.CreateTestUser(t, f.db, true)
	invitee := testutil.CreateTestUser(t, f.db, true)
	stranger := testutil.CreateTestUser(t, f.db, true)
	org := testutil.CreateTestOrg(t, f.db)
	testutil.CreateTestMember(t, f.db, owner, org, "owner")

	ownerToken := f.signIn(t, owner)
	inviteeToken := f.signIn(t, invitee)
	strangerToken := f.signIn(t, stranger)

	assert.Equal(t, "validation_error", f.svc.InviteMember(ctx, ownerToken, org.ID.String(), invitee.Email, "owner").Code)
	assert.Equal(t, "duplicate_membership", f.svc.InviteMember(ctx, ownerToken, org.ID.String(), owner.Email, "member").Code)
	assert.Equal(t, "not_a_member", f.svc.InviteMember(ctx, inviteeToken, org.ID.String(), stranger.Email, "member").Code)

	res := f.svc.InviteMember(ctx, ownerToken, org.ID.String(), strings.ToUpper(invitee.Email), "admin")
	require.True(t, res.Success, res.Message)
	inv := res.Data.(*InvitationData)
	assert.Equal(t, invitee.Email, inv.Email)
	assert.Equal(t, "pending", inv.Status)
	assert.WithinDuration(t, time.Now().Add(48*time.Hour), inv.ExpiresAt, time.Minute)
	assert.Equal(t, 1, f.dispatcher.count(emailKindInvite))

	pending := f.svc.ListInvitations(ctx, inviteeToken)
	require.True(t, pending.Success)
	require.Len(t, pending.Data, 1)
	assert.Equal(t, org.Name, pending.Data.([]*InvitationData)[0].OrganizationName)
	assert.Empty(t, f.svc.ListInvitations(ctx, strangerToken).Data)

	assert.Equal(t, "forbidden", f.svc.AcceptInvitation(ctx, strangerToken, inv.ID.String()).Code)

	res = f.svc.AcceptInvitation(ctx, inviteeToken, inv.ID.String())
	require.True(t, res.Success, res.Message)
	active := res.Data.(*SessionData).ActiveOrganization
	require.NotNil(t, active)
	assert.Equal(t, org.ID, active.ID)

	member, err := f.store.GetMember(ctx, invitee.ID, org.ID)
	require.NoError(t, err)
	assert.Equal(t, "admin", member.Role)

	assert.Equal(t, "invitation_unavailable", f.svc.AcceptInvitation(ctx, inviteeToken, inv.ID.String()).Code)
	assert.Equal(t, "invitation_unavailable", f.svc.AcceptInvitation(ctx, inviteeToken, uuid.NewString()).Code)
	assert.Empty(t, f.svc.ListInvitations(ctx, inviteeToken).Data)
}

func TestInvitations_RejectCancelExpire(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	owner := testutil.CreateTestUser(t, f.db, true)
	member := testutil.CreateTestUser(t, f.db, true)
	invitee := testutil.CreateTestUser(t, f.db, true)
	org := testutil.CreateTestOrg(t, f.db)
	testutil.CreateTestMember(t, f.db, owner, org, "owner")
	testutil.CreateTestMember(t, f.db, member, org, "member")

	ownerToken := f.signIn(t, owner)
	memberToken := f.signIn(t, member)
	inviteeToken := f.signIn(t, invitee)

	invite := func() string {
		res := f.svc.InviteMember(ctx, ownerToken, org.ID.String(), invitee.Email, "")
		require.True(t, res.Success, res.Message)
		return res.Data.(*InvitationData).ID.String()
	}

	rejected := invite()
	require.True(t, f.svc.RejectInvitation(ctx, inviteeToken, rejected).Success)
	assert.Equal(t, "invitation_unavailable", f.svc.AcceptInvitation(ctx, inviteeToken, rejected).Code)

	canceled := invite()
	assert.Equal(t, "forbidden", f.svc.CancelInvitation(ctx, memberToken, canceled).Code)
	require.True(t, f.svc.CancelInvitation(ctx, ownerToken, canceled).Success)
	assert.Equal(t, "invitation_unavailable", f.svc.AcceptInvitation(ctx, inviteeToken, canceled).Code)
	assert.Equal(t, "invitation_unavailable", f.svc.CancelInvitation(ctx, ownerToken, canceled).Code)

	expired := invite()
	require.NoError(t, f.db.Model(&models.Invitation{}).Where("id = ?", expired).
		Update("expires_at", time.Now().UTC().Add(-time.Minute)).Error)
	assert.Equal(t, "invitation_unavailable", f.svc.AcceptInvitation(ctx, inviteeToken, expired).Code)

	_, err := f.store.GetMember(ctx, invitee.ID, org.ID)
	assert.Error(t, err)
}

func TestUploadOrganizationLogo(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	owner := testutil.CreateTestUser(t, f.db, true)
	member := testutil.CreateTestUser(t, f.db, true)
	org := testutil.CreateTestOrg(t, f.db)
	testutil.CreateTestMember(t, f.db, owner, org, "owner")
	testutil.CreateTestMember(t, f.db, member, org, "member")
	ownerToken := f.signIn(t, owner)
	memberToken := f.signIn(t, member)

	res := f.svc.UploadOrganizationLogo(ctx, ownerToken, org.ID.String(), "image/png", strings.NewReader("png"))
	assert.Equal(t, "provider_unavailable", res.Code)

	f.svc.logos = fakeLogos{}

	res = f.svc.UploadOrganizationLogo(ctx, memberToken, org.ID.String(), "image/png", strings.NewReader("png"))
	assert.Equal(t, "forbidden", res.Code)

	res = f.svc.UploadOrganizationLogo(ctx, ownerToken, org.ID.String(), "image/png", strings.NewReader("png"))
	require.True(t, res.Success, res.Message)
	logo := res.Data.(*OrganizationData).Logo
	require.NotNil(t, logo)
	assert.Contains(t, *logo, org.ID.String())
}
