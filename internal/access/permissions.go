package access

// Permission is an opaque token identifying one allowed action.
type Permission string

const (
	PermUploadDocument         Permission = "upload_document"
	PermViewOwnDocuments       Permission = "view_own_documents"
	PermViewMarketplace        Permission = "view_marketplace"
	PermPurchaseCredits        Permission = "purchase_credits"
	PermRetireCredits          Permission = "retire_credits"
	PermBulkUpload             Permission = "bulk_upload"
	PermViewPortfolioAnalytics Permission = "view_portfolio_analytics"
	PermViewAllDocuments       Permission = "view_all_documents"
	PermAttestDocument         Permission = "attest_document"
	PermMintCredits            Permission = "mint_credits"
	PermManageUsers            Permission = "manage_users"
	PermManagePages            Permission = "manage_pages"
)

// Table maps each role to its permission set. Defined at construction,
// immutable thereafter. The admin set must stay a superset of every other
// role's set; that is a convention maintained here, not enforced.
type Table map[Role][]Permission

// DefaultTable returns the builtin role→permission mapping.
func DefaultTable() Table {
	individual := []Permission{
		PermUploadDocument,
		PermViewOwnDocuments,
		PermViewMarketplace,
		PermPurchaseCredits,
		PermRetireCredits,
	}
	business := append(append([]Permission{}, individual...),
		PermBulkUpload,
		PermViewPortfolioAnalytics,
	)
	verifier := []Permission{
		PermViewAllDocuments,
		PermAttestDocument,
		PermMintCredits,
	}
	admin := append(append([]Permission{}, business...), verifier...)
	admin = append(admin, PermManageUsers, PermManagePages)

	return Table{
		RoleIndividual: individual,
		RoleBusiness:   business,
		RoleVerifier:   verifier,
		RoleAdmin:      admin,
	}
}
