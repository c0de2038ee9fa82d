package permissions

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTokenKnown(t *testing.T) {
	token, err := ParseToken(" Notification:Approve ")
	require.NoError(t, err)
	require.Equal(t, NotificationApprove, token)
	require.Equal(t, "notification", token.Resource())
	require.Equal(t, "approve", token.Action())
}

func TestParseTokenRejectsUnknownAndMalformed(t *testing.T) {
	for _, raw := range []string{"notification:publish", "notification", ":approve", "a:b:c", ""} {
		_, err := ParseToken(raw)
		require.Error(t, err, raw)
		require.True(t, errors.Is(err, ErrUnknownPermission), raw)
	}
}

func TestRegisterPreventsDuplicates(t *testing.T) {
	token := Token("test:unique")
	require.NoError(t, Register(&Permission{Token: token}))
	t.Cleanup(func() { unregister(token) })

	err := Register(&Permission{Token: token})
	require.ErrorIs(t, err, errDuplicateID)
}

func TestRegisterRejectsSelfReferences(t *testing.T) {
	require.ErrorIs(t, Register(&Permission{Token: "test:self", DependsOn: []Token{"test:self"}}), errSelfDependency)
	require.ErrorIs(t, Register(&Permission{Token: "test:self", Implies: []Token{"test:self"}}), errSelfImplication)
	require.ErrorIs(t, Register(&Permission{Token: "nocolon"}), errMalformedToken)
	require.ErrorIs(t, Register(nil), errNilPermission)
}

func TestCoreRegistryIsConsistent(t *testing.T) {
	require.NoError(t, ValidateDependencies())
	require.Contains(t, Tokens(), NotificationApprove)
}

func TestResolveDependenciesReturnsTransitiveClosure(t *testing.T) {
	ids := []Token{"perm:base", "perm:mid", "perm:top"}
	require.NoError(t, Register(&Permission{Token: ids[0]}))
	require.NoError(t, Register(&Permission{Token: ids[1], DependsOn: []Token{ids[0]}}))
	require.NoError(t, Register(&Permission{Token: ids[2], DependsOn: []Token{ids[1]}}))
	t.Cleanup(func() {
		for _, id := range ids {
			unregister(id)
		}
	})

	deps, err := ResolveDependencies(ids[2])
	require.NoError(t, err)
	require.ElementsMatch(t, []Token{ids[0], ids[1]}, deps)
}

func TestResolveDependenciesDetectsCycles(t *testing.T) {
	const (
		first  Token = "cycle:first"
		second Token = "cycle:second"
	)
	require.NoError(t, Register(&Permission{Token: first, DependsOn: []Token{second}}))
	require.NoError(t, Register(&Permission{Token: second, DependsOn: []Token{first}}))
	t.Cleanup(func() {
		unregister(first)
		unregister(second)
	})

	_, err := ResolveDependencies(first)
	require.ErrorIs(t, err, ErrCircularDependency)
}

func TestCallerContextRoundTrip(t *testing.T) {
	caller := CallerContext{UserID: "u-1", OrganizationID: "o-1", Permissions: NewSet(UserRead)}
	ctx := WithCaller(context.Background(), caller)

	got := FromContext(ctx)
	require.Equal(t, "u-1", got.UserID)
	require.True(t, got.Can(UserRead))
	require.False(t, got.Can(UserDelete))
	require.True(t, got.IsSelf("u-1"))
	require.False(t, got.IsSelf("u-2"))

	anon := FromContext(context.Background())
	require.False(t, anon.Authenticated())
	require.False(t, anon.IsSelf(""))
	require.Empty(t, anon.Permissions)
}
