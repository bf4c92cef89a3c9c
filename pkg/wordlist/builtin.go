package wordlist

// builtin is the fallback list used when no wordlist file is supplied.
// Ordered roughly by hit likelihood.
var builtin = []string{
	"admin",
	"administrator",
	"admin/login",
	"admin/index.php",
	"admin/dashboard",
	"admin_panel",
	"adminpanel",
	"admin-console",
	"admincp",
	"admcp",
	"cp",
	"controlpanel",
	"control",
	"panel",
	"dashboard",
	"login",
	"login.php",
	"signin",
	"backend",
	"manage",
	"manager",
	"management",
	"wp-admin",
	"wp-login.php",
	"administrator/index.php",
	"user/login",
	"users/login",
	"account/login",
	"auth/login",
	"cms",
	"console",
	"portal",
	"webadmin",
	"sysadmin",
	"siteadmin",
	"moderator",
	"phpmyadmin",
	"pma",
	"myadmin",
	"mysql",
	"db",
	"dbadmin",
	"staff",
	"secure",
	"secret",
	"private",
	"hidden",
	"system",
	"settings",
	"config",
	"configuration",
	"setup",
	"install",
	"adm",
	"admin1",
	"admin2",
	"admin/admin",
	"admin/account",
	"admin/controlpanel",
	"admin/cp",
	"admin/home",
	"admin/admin-login",
	"admin/adminLogin",
	"admin_area",
	"admin-area",
	"adminarea",
	"bb-admin",
	"panel-administracion",
	"instadmin",
	"memberadmin",
	"administratorlogin",
	"adminLogin",
	"admin_login",
	"admin-login",
	"superadmin",
	"superuser",
	"root",
	"supervisor",
	"backoffice",
	"back-office",
	"intranet",
	"internal",
	"operator",
	"moderator/login",
	"typo3",
	"administration",
	"admins",
	"usuarios/login",
	"acceso",
	"cuentas",
	"entrada",
	"gestion",
	"verwaltung",
	"anmelden",
	"connexion",
	"administrateur",
	"gestione",
	"amministratore",
	"admin.php",
	"admin.html",
	"admin.asp",
	"admin.aspx",
	"admin.jsp",
}
