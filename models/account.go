package models

// Account is the authorization identifier handed out by the wallet provider.
// The zero value means no account is connected.
type Account string

func (a Account) Empty() bool {
	return a == ""
}

func (a Account) String() string {
	return string(a)
}
