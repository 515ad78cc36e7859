package shared

// Permission names used by the HTTP layer. The seed script creates these;
// the rbac module treats permission names as opaque strings.
const (
	PermIdentityView   = "identity.view"
	PermIdentityManage = "identity.manage"
	PermRBACManage     = "rbac.manage"
	PermCatalogManage  = "catalog.manage"
	PermCouponsManage  = "coupons.manage"
	PermOrdersView     = "orders.view"
	PermOrdersManage   = "orders.manage"
)
