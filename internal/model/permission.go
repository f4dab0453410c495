package model

// Permission 是用户在某个卷上的有效权限等级，数值同时用于存储和传输。
type Permission int

const (
	PermNone      Permission = 0
	PermRead      Permission = 10
	PermReadWrite Permission = 20
	PermAdmin     Permission = 30
)

// Valid 判断是否为已定义的权限值。
func (p Permission) Valid() bool {
	switch p {
	case PermNone, PermRead, PermReadWrite, PermAdmin:
		return true
	}
	return false
}

func (p Permission) String() string {
	switch p {
	case PermRead:
		return "Read"
	case PermReadWrite:
		return "ReadWrite"
	case PermAdmin:
		return "Admin"
	default:
		return "None"
	}
}
