package browser

import "errors"

var (
	// ErrHTMLAccessDisabled is returned by DOM accessors when the bridge is
	// turned off or the plugin runs out of browser.
	ErrHTMLAccessDisabled = errors.New("browser: HTML bridge is not enabled or available")

	ErrEmptyName          = errors.New("browser: name is empty")
	ErrNameHasNull        = errors.New("browser: name contains a NUL character")
	ErrNilInstance        = errors.New("browser: instance is nil")
	ErrNotPublic          = errors.New("browser: instance type is not public")
	ErrNotScriptable      = errors.New("browser: no public scriptable member found")
	ErrNilType            = errors.New("browser: type is nil")
	ErrNotCreateable      = errors.New("browser: type is not createable")
	ErrAliasRegistered    = errors.New("browser: script alias already registered")
	ErrAliasNotRegistered = errors.New("browser: script alias not registered")

	ErrNilURI              = errors.New("browser: navigate uri is nil")
	ErrInvalidScheme       = errors.New("browser: popup uri must use http or https")
	ErrMissingHistoryFrame = errors.New(`browser: missing <iframe id="_sl_historyFrame">`)

	ErrNoSuchMember  = errors.New("browser: no such scriptable member")
	ErrArgumentCount = errors.New("browser: wrong number of arguments")
	ErrReadOnly      = errors.New("browser: property is read-only")
	ErrNotFunction   = errors.New("browser: member is not a function")
	ErrPageClosed    = errors.New("browser: page is closed")
)

// checkName validates a script key or alias.
func checkName(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	for i := 0; i < len(name); i++ {
		if name[i] == 0 {
			return ErrNameHasNull
		}
	}
	return nil
}
